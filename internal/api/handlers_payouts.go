package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"payout-ledger/internal/ledger"
)

type payoutStatusRequest struct {
	ClientID      string     `json:"client_id"`
	PaymentType   string     `json:"payment_type"`
	Status        string     `json:"status"`
	PaidOutDate   *time.Time `json:"paid_out_date,omitempty"`
	TransactionID *string    `json:"transaction_id,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// handleUpdatePayoutStatus moves one member's payout record for a unit to a
// new status. Repeating the same outcome is a no-op.
// PUT /api/opportunities/:id/payout-status
func (s *Server) handleUpdatePayoutStatus(c *gin.Context) {
	var req payoutStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ClientID == "" {
		errorResponse(c, http.StatusBadRequest, "client_id is required")
		return
	}
	if req.PaymentType == "" {
		req.PaymentType = "value"
	}

	status, err := ledger.ParsePayoutStatus(req.Status)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.service.UpdatePayoutStatus(c.Request.Context(), c.Param("id"), req.ClientID, req.PaymentType, ledger.PayoutOutcome{
		Status:        status,
		PaidOutDate:   req.PaidOutDate,
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
	})
	if err != nil {
		ledgerError(c, err)
		return
	}

	s.invalidatePayoutCaches(c, c.Param("id"), []ledger.PayoutRecord{*record})
	successResponse(c, record)
}

// handlePayoutWebhook ingests payment-processor execution events. The body
// is authenticated by an HMAC-SHA256 signature over the raw payload.
// POST /api/webhooks/payout-events
func (s *Server) handlePayoutWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "reading request body failed")
		return
	}

	if !s.verifyWebhookSignature(c, body) {
		errorResponse(c, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var ev ledger.ExternalPayoutEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid event payload: "+err.Error())
		return
	}

	record, err := s.reconciler.Reconcile(c.Request.Context(), ev)
	if err != nil {
		ledgerError(c, err)
		return
	}

	s.invalidatePayoutCaches(c, record.OpportunityID, []ledger.PayoutRecord{*record})
	successResponse(c, record)
}

// verifyWebhookSignature checks the X-Webhook-Signature header, a hex
// HMAC-SHA256 of the raw body under the shared processor secret.
func (s *Server) verifyWebhookSignature(c *gin.Context, body []byte) bool {
	secret, err := s.vaultClient.WebhookSecret(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("webhook secret unavailable")
		return false
	}

	signature := strings.TrimPrefix(c.GetHeader("X-Webhook-Signature"), "sha256=")
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
