package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/reelkitchen/backend/internal/logger"
	"github.com/pageza/reelkitchen/backend/internal/service"
)

const (
	// SignatureHeader carries the HMAC of the webhook body
	SignatureHeader = "X-Webhook-Signature"
	signaturePrefix = "sha256="
	maxWebhookBody  = 2 << 20
)

// WebhookHandler receives extraction results pushed by the extractor
type WebhookHandler struct {
	submissions service.ISubmissionService
	secret      []byte
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(submissions service.ISubmissionService, secret string) *WebhookHandler {
	return &WebhookHandler{submissions: submissions, secret: []byte(secret)}
}

// RegisterRoutes registers the webhook routes
func (h *WebhookHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/webhooks/extraction", h.Extraction)
}

// SignBody returns the signature header value for body
func SignBody(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header value against body
func VerifySignature(secret, body []byte, header string) bool {
	if len(secret) == 0 || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Extraction applies an extraction callback
func (h *WebhookHandler) Extraction(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if !VerifySignature(h.secret, body, c.GetHeader(SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	res, err := service.ParseExtractionResponse(body)
	if err != nil {
		logger.FromGin(c).Warn("Unparseable extraction callback", zap.Error(err))
		badRequest(c, err)
		return
	}
	sub, err := h.submissions.ApplyCallback(c.Request.Context(), res)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"submission_id": sub.ID,
		"status":        sub.Status,
	})
}
