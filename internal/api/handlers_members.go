package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"payout-ledger/internal/ledger"
)

// ledgerError maps ledger errors onto HTTP statuses: configuration errors
// are 422 so staff tooling can distinguish "fix the splits" from bad
// requests, conflicts are 409, lookups 404.
func ledgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrSplitOverAllocated),
		errors.Is(err, ledger.ErrNoActiveMembers),
		errors.Is(err, ledger.ErrPartialAllocation):
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrIllegalTransition),
		errors.Is(err, ledger.ErrUnitNotReceived):
		errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInvalidStatus):
		errorResponse(c, http.StatusBadRequest, err.Error())
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}

// handleGetOpportunity returns the opportunity with its payment aggregates.
// GET /api/opportunities/:id
func (s *Server) handleGetOpportunity(c *gin.Context) {
	opportunity, err := s.service.GetOpportunity(c.Request.Context(), c.Param("id"))
	if err != nil {
		ledgerError(c, err)
		return
	}
	successResponse(c, opportunity)
}

// handleListMembers returns all members of an opportunity.
// GET /api/opportunities/:id/members
func (s *Server) handleListMembers(c *gin.Context) {
	members, err := s.service.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		ledgerError(c, err)
		return
	}
	successResponse(c, members)
}

// handleAddMember adds a member to an opportunity.
// POST /api/opportunities/:id/members
func (s *Server) handleAddMember(c *gin.Context) {
	var in ledger.MemberInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	member, err := s.service.AddMember(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		ledgerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": member})
}

// handleUpdateMember updates a member's role, split, or delay.
// PUT /api/opportunities/:id/members/:clientId
func (s *Server) handleUpdateMember(c *gin.Context) {
	var in ledger.MemberInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	member, err := s.service.UpdateMember(c.Request.Context(), c.Param("id"), c.Param("clientId"), in)
	if err != nil {
		ledgerError(c, err)
		return
	}
	successResponse(c, member)
}

// handleRemoveMember soft-deactivates a member.
// DELETE /api/opportunities/:id/members/:clientId
func (s *Server) handleRemoveMember(c *gin.Context) {
	member, err := s.service.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("clientId"))
	if err != nil {
		ledgerError(c, err)
		return
	}
	successResponse(c, member)
}

// handleValidateSplits runs the split validator for a unit of the
// opportunity without distributing anything.
// GET /api/opportunities/:id/splits/validate?payment_type=value
func (s *Server) handleValidateSplits(c *gin.Context) {
	paymentType := c.DefaultQuery("payment_type", "value")
	sel, err := ledger.ParseUnitSelector(paymentType)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	unit, err := s.service.Store().FindPaymentUnit(c.Request.Context(), c.Param("id"), sel.Type, sel.ScheduleIndex, sel.DueDate)
	if err != nil {
		ledgerError(c, err)
		return
	}
	result, err := s.engine.Validator().Validate(c.Request.Context(), unit)
	if err != nil {
		ledgerError(c, err)
		return
	}
	successResponse(c, result)
}
