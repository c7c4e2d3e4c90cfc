package wallet

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/errutil"
	"sharemint-core/pkg/middleware"
	"sharemint-core/pkg/session"
	"sharemint-core/services/throttle"
)

type Handler struct {
	svc      *Service
	throttle *throttle.Service

	sessionSecret string
	sessionTTL    time.Duration
}

type HandlerParams struct {
	fx.In

	Service  *Service
	Throttle *throttle.Service
	Config   *config.Config
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		svc:           p.Service,
		throttle:      p.Throttle,
		sessionSecret: p.Config.Session.Secret,
		sessionTTL:    p.Config.Session.TTL,
	}
}

func (h *Handler) Register(r *gin.Engine, cfg *config.Config) {
	v1 := r.Group("/api/v1")
	v1.POST("/wallet/challenge", h.challenge)
	v1.POST("/wallet/verify", middleware.OptionalAuth(cfg.Session.Secret), h.verify)
}

func (h *Handler) challenge(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.NewChallenge())
}

type verifyRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Bind      bool   `json:"bind"`
}

type verifyResponse struct {
	SubjectID string `json:"subject_id"`
	Address   string `json:"address"`
	Bound     bool   `json:"bound"`
	Token     string `json:"token"`
}

func (h *Handler) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	ctx := c.Request.Context()
	if err := h.throttle.Check(ctx, req.Address); err != nil {
		c.Error(err)
		return
	}

	identity, err := h.svc.Verify(ctx, req.Address, req.Signature, req.Message)
	if err != nil {
		if _, terr := h.throttle.RecordAttempt(ctx, req.Address, false); terr != nil {
			zap.L().Error("failed to record throttle attempt", zap.Error(terr))
		}
		c.Error(err)
		return
	}

	if _, terr := h.throttle.RecordAttempt(ctx, req.Address, true); terr != nil {
		zap.L().Error("failed to reset throttle state", zap.Error(terr))
	}

	if req.Bind && !identity.Bound {
		subject := middleware.Subject(c)
		if subject == "" {
			c.Error(errutil.Unauthorized("binding requires an authenticated subject", nil))
			return
		}
		if err := h.svc.Bind(ctx, subject, req.Address); err != nil {
			c.Error(err)
			return
		}
		identity.SubjectID = subject
		identity.Bound = true
	}

	// unbound wallets get a wallet-scoped session; the subject is the address
	subjectID := identity.SubjectID
	if subjectID == "" {
		subjectID = identity.Address
	}

	token, err := session.Issue(h.sessionSecret, h.sessionTTL, subjectID, identity.Address)
	if err != nil {
		c.Error(errutil.Internal("failed to issue session token", err, errutil.WithErr(err)))
		return
	}

	c.JSON(http.StatusOK, verifyResponse{
		SubjectID: subjectID,
		Address:   identity.Address,
		Bound:     identity.Bound,
		Token:     token,
	})
}
