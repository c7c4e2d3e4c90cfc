package payout

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/errutil"
	"sharemint-core/pkg/middleware"
)

type Handler struct {
	svc *Service
}

type HandlerParams struct {
	fx.In

	Service *Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{svc: p.Service}
}

func (h *Handler) Register(r *gin.Engine, cfg *config.Config) {
	v1 := r.Group("/api/v1")
	v1.POST("/payouts/settle", middleware.RequireAuth(cfg.Session.Secret), h.settle)
}

type settleRequest struct {
	CampaignID    string `json:"campaign_id" binding:"required"`
	PayoutAddress string `json:"payout_address"`
}

func (h *Handler) settle(c *gin.Context) {
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	result, err := h.svc.Settle(c.Request.Context(), middleware.Subject(c), req.CampaignID, req.PayoutAddress)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}
