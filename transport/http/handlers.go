package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dust3/gatekeeper/core"
	"github.com/dust3/gatekeeper/guard/ratelimit"
	"github.com/dust3/gatekeeper/service"
)

// RateClasses carries the per-endpoint-class volume limits. General covers
// everything without a class of its own.
type RateClasses struct {
	General ratelimit.Config
	Connect ratelimit.Config
	Settle  ratelimit.Config
	Quote   ratelimit.Config
}

// Handlers contains the HTTP handlers for the gate and buyback endpoints.
type Handlers struct {
	gate    *service.AuthGate
	buyback *service.BuybackService
	rates   RateClasses
	log     *slog.Logger
}

func NewHandlers(gate *service.AuthGate, buyback *service.BuybackService, rates RateClasses, log *slog.Logger) *Handlers {
	return &Handlers{gate: gate, buyback: buyback, rates: rates, log: log}
}

// CSRFToken hands out the replay token for the calling client. Clients
// fetch it once and again whenever a request is refused with CSRF_INVALID.
func (h *Handlers) CSRFToken(c *gin.Context) {
	clientKey := c.Query("wallet")
	if clientKey == "" {
		clientKey = c.ClientIP()
	}

	token, err := h.gate.IssueCSRF(clientKey)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"csrf_token": token})
}

// Connect authenticates a wallet with a signed message and opens a session.
func (h *Handlers) Connect(c *gin.Context) {
	var req struct {
		Wallet    string `json:"wallet" binding:"required"`
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
		CSRFToken string `json:"csrf_token"`
		Nonce     string `json:"nonce"`
		Timestamp int64  `json:"timestamp"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	identity, accessToken, refreshToken, err := h.gate.Connect(c.Request.Context(), service.GateRequest{
		Wallet:    req.Wallet,
		IP:        c.ClientIP(),
		Message:   req.Message,
		Signature: req.Signature,
		CSRFToken: req.CSRFToken,
		Nonce:     req.Nonce,
		Timestamp: req.Timestamp,
		RateLimit: h.rates.Connect,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_in":    300, // 5 minutes in seconds
		"wallet":        identity.Wallet,
	})
}

// Refresh handles token refresh
func (h *Handlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	accessToken, refreshToken, err := h.gate.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_in":    300,
	})
}

// Logout handles session logout
func (h *Handlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.gate.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Quote prices one item for display. The price is not binding; settlement
// re-prices from the oracle.
func (h *Handlers) Quote(c *gin.Context) {
	quote, err := h.buyback.Quote(c.Request.Context(), c.Param("item"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item_ref":        quote.ItemRef,
		"oracle_price":    quote.OraclePrice,
		"spread_bps":      quote.SpreadBps,
		"fee_flat":        quote.FeeFlat,
		"effective_price": quote.EffectivePrice,
		"expires_at":      quote.ExpiresAt,
	})
}

// Settle executes a buyback. The caller holds a session and additionally
// signs the settle request; min_acceptable is the payout the client saw
// when it decided to sell.
func (h *Handlers) Settle(c *gin.Context) {
	var req struct {
		ItemRef       string `json:"item_ref" binding:"required"`
		MinAcceptable string `json:"min_acceptable" binding:"required"`
		Message       string `json:"message" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
		CSRFToken     string `json:"csrf_token"`
		Nonce         string `json:"nonce"`
		Timestamp     int64  `json:"timestamp"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	minAcceptable, err := decimal.NewFromString(req.MinAcceptable)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid min_acceptable"})
		return
	}

	identity, err := h.gate.Admit(c.Request.Context(), service.GateRequest{
		Wallet:           c.GetString(sessionWalletKey),
		IP:               c.ClientIP(),
		Message:          req.Message,
		Signature:        req.Signature,
		CSRFToken:        req.CSRFToken,
		Nonce:            req.Nonce,
		Timestamp:        req.Timestamp,
		RateLimit:        h.rates.Settle,
		RequireSignature: true,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	result, err := h.buyback.Settle(c.Request.Context(), req.ItemRef, identity, minAcceptable)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	body := settlementBody(result.Settlement)
	switch {
	case result.AlreadySettled:
		body["code"] = string(core.CodeAlreadySettled)
		c.JSON(http.StatusOK, body)
	case result.Settlement.Status == core.SettlementPending:
		c.JSON(http.StatusAccepted, body)
	default:
		c.JSON(http.StatusOK, body)
	}
}

// History returns the caller's own settlement for an item. A read behind a
// valid session carries no fresh signature; the admission pipeline still
// applies its volume and lockout checks to the session wallet.
func (h *Handlers) History(c *gin.Context) {
	identity, err := h.gate.Admit(c.Request.Context(), service.GateRequest{
		Wallet:           c.GetString(sessionWalletKey),
		IP:               c.ClientIP(),
		RateLimit:        h.rates.General,
		RequireSignature: false,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	settlement, err := h.buyback.History(c.Request.Context(), c.Param("item"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if settlement.Wallet != identity.Wallet {
		// Settlements are only visible to the wallet that was paid.
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.JSON(http.StatusOK, settlementBody(settlement))
}

// SettlementStatus returns the settlement record for an item.
func (h *Handlers) SettlementStatus(c *gin.Context) {
	settlement, err := h.buyback.History(c.Request.Context(), c.Param("item"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, settlementBody(settlement))
}

// Me returns information about the authenticated wallet.
func (h *Handlers) Me(c *gin.Context) {
	wallet := c.GetString(sessionWalletKey)
	if wallet == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet": wallet,
		"admin":  h.gate.IsAdmin(wallet),
	})
}

func settlementBody(s *core.Settlement) gin.H {
	return gin.H{
		"settlement_id": s.ID,
		"item_ref":      s.ItemRef,
		"wallet":        s.Wallet,
		"payout_amount": s.PayoutAmount,
		"status":        string(s.Status),
		"tx_signature":  s.TxSignature,
	}
}
