package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payout-ledger/internal/cache"
	"payout-ledger/internal/ledger"
	"payout-ledger/internal/money"
)

type distributeRequest struct {
	PaymentType   string `json:"payment_type"`
	AcceptPartial bool   `json:"accept_partial"`
	Redistribute  bool   `json:"redistribute"`
}

type paymentStatusRequest struct {
	PaymentType  string     `json:"payment_type"`
	Status       string     `json:"status"`
	ReceivedDate *time.Time `json:"received_date,omitempty"`
}

// handleDistribute distributes a received payment unit across the effective
// splits. With redistribute=true the live distribution is superseded first
// and rebuilt from the current splits.
// POST /api/opportunities/:id/distribute
func (s *Server) handleDistribute(c *gin.Context) {
	var req distributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PaymentType == "" {
		req.PaymentType = "value"
	}

	sel, err := ledger.ParseUnitSelector(req.PaymentType)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	unit, err := s.service.Store().FindPaymentUnit(ctx, c.Param("id"), sel.Type, sel.ScheduleIndex, sel.DueDate)
	if err != nil {
		ledgerError(c, err)
		return
	}

	var records []ledger.PayoutRecord
	var created bool
	if req.Redistribute {
		records, err = s.engine.Redistribute(ctx, unit.ID, req.AcceptPartial)
		created = err == nil
	} else {
		records, created, err = s.engine.Distribute(ctx, unit.ID, req.AcceptPartial)
	}
	if err != nil {
		ledgerError(c, err)
		return
	}

	s.invalidatePayoutCaches(c, c.Param("id"), records)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "data": gin.H{
		"payouts": records,
		"created": created,
	}})
}

// handleUpdatePaymentStatus marks a payment unit received. Marking the same
// unit received twice is a no-op.
// PUT /api/opportunities/:id/payment-status
func (s *Server) handleUpdatePaymentStatus(c *gin.Context) {
	var req paymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Status != "" && req.Status != string(ledger.UnitReceived) {
		errorResponse(c, http.StatusBadRequest, "only the RECEIVED status can be set through this endpoint")
		return
	}
	if req.PaymentType == "" {
		req.PaymentType = "value"
	}

	unit, err := s.service.MarkUnitReceived(c.Request.Context(), c.Param("id"), req.PaymentType, req.ReceivedDate)
	if err != nil {
		ledgerError(c, err)
		return
	}
	successResponse(c, unit)
}

// handleListOpportunityPayouts lists every payout record of an opportunity,
// serving from cache when Redis is healthy.
// GET /api/opportunities/:id/payouts
func (s *Server) handleListOpportunityPayouts(c *gin.Context) {
	opportunityID := c.Param("id")
	ctx := c.Request.Context()

	if s.cache != nil {
		var cached []ledger.PayoutRecord
		if err := s.cache.GetOpportunityPayouts(ctx, opportunityID, &cached); err == nil {
			successResponse(c, cached)
			return
		}
	}

	payouts, err := s.service.ListPayoutsByOpportunity(ctx, opportunityID)
	if err != nil {
		ledgerError(c, err)
		return
	}

	if s.cache != nil {
		if err := s.cache.SetOpportunityPayouts(ctx, opportunityID, payouts); err != nil && !errors.Is(err, cache.ErrCacheUnavailable) {
			s.logger.Warn().Err(err).Msg("caching opportunity payouts failed")
		}
	}
	successResponse(c, payouts)
}

// handleListMemberPayouts lists a member's payout records across
// opportunities.
// GET /api/members/:clientId/payouts
func (s *Server) handleListMemberPayouts(c *gin.Context) {
	payouts, err := s.service.ListPayoutsByMember(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		ledgerError(c, err)
		return
	}
	successResponse(c, payouts)
}

// MemberSummary aggregates a member's payout records across opportunities.
type MemberSummary struct {
	ClientID      string               `json:"client_id"`
	TotalEarned   money.Amount         `json:"total_earned"`
	TotalPending  money.Amount         `json:"total_pending"`
	PayoutCount   int                  `json:"payout_count"`
	CountByStatus map[string]int       `json:"count_by_status"`
	Opportunities []string             `json:"opportunities"`
	NextPayout    *ledger.PayoutRecord `json:"next_payout,omitempty"`
}

// handleMemberSummary returns a member's aggregate earnings, serving from
// cache when Redis is healthy.
// GET /api/members/:clientId/summary
func (s *Server) handleMemberSummary(c *gin.Context) {
	clientID := c.Param("clientId")
	ctx := c.Request.Context()

	if s.cache != nil {
		var cached MemberSummary
		if err := s.cache.GetMemberSummary(ctx, clientID, &cached); err == nil {
			successResponse(c, cached)
			return
		}
	}

	payouts, err := s.service.ListPayoutsByMember(ctx, clientID)
	if err != nil {
		ledgerError(c, err)
		return
	}
	summary := buildMemberSummary(clientID, payouts)

	if s.cache != nil {
		if err := s.cache.SetMemberSummary(ctx, clientID, summary); err != nil && !errors.Is(err, cache.ErrCacheUnavailable) {
			s.logger.Warn().Err(err).Msg("caching member summary failed")
		}
	}
	successResponse(c, summary)
}

func buildMemberSummary(clientID string, payouts []ledger.PayoutRecord) MemberSummary {
	summary := MemberSummary{
		ClientID:      clientID,
		CountByStatus: make(map[string]int),
	}
	seenOpps := make(map[string]bool)

	for i := range payouts {
		p := &payouts[i]
		if p.Superseded {
			continue
		}
		summary.PayoutCount++
		summary.CountByStatus[string(p.Status)]++
		if !seenOpps[p.OpportunityID] {
			seenOpps[p.OpportunityID] = true
			summary.Opportunities = append(summary.Opportunities, p.OpportunityID)
		}

		switch p.Status {
		case ledger.PayoutPaid:
			summary.TotalEarned += p.Amount
		case ledger.PayoutPending, ledger.PayoutScheduled, ledger.PayoutProcessing:
			summary.TotalPending += p.Amount
			if summary.NextPayout == nil || p.PayoutDate.Before(summary.NextPayout.PayoutDate) {
				summary.NextPayout = p
			}
		}
	}
	return summary
}

// invalidatePayoutCaches drops cached summaries for an opportunity and the
// members named in the given records.
func (s *Server) invalidatePayoutCaches(c *gin.Context, opportunityID string, records []ledger.PayoutRecord) {
	if s.cache == nil {
		return
	}
	seen := make(map[string]bool)
	s.cache.Invalidate(c.Request.Context(), opportunityID, "")
	for i := range records {
		if clientID := records[i].ClientID; !seen[clientID] {
			seen[clientID] = true
			s.cache.Invalidate(c.Request.Context(), opportunityID, clientID)
		}
	}
}
