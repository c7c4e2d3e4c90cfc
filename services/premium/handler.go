package premium

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/currency"
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
	auth := middleware.RequireAuth(cfg.Session.Secret)

	v1.POST("/assets", auth, h.create)
	v1.GET("/assets/:id/access", middleware.OptionalAuth(cfg.Session.Secret), h.access)
	v1.POST("/assets/:id/purchase", auth, h.purchase)
}

type createAssetRequest struct {
	ContentID string `json:"content_id" binding:"required"`
	IsPremium bool   `json:"is_premium"`
	PriceSOL  string `json:"price_sol"`
	Payee     string `json:"payee"`
}

func (h *Handler) create(c *gin.Context) {
	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	var price int64
	if req.IsPremium {
		d, err := decimal.NewFromString(req.PriceSOL)
		if err != nil {
			c.Error(errutil.ValidationFailed("price_sol is not a valid amount", err, errutil.WithErr(err)))
			return
		}
		price, err = currency.ToLamports(d)
		if err != nil {
			c.Error(errutil.ValidationFailed("price_sol is not a valid amount", err, errutil.WithErr(err)))
			return
		}
	}

	asset, err := h.svc.CreateAsset(c.Request.Context(), CreateAssetInput{
		ContentID: req.ContentID,
		OwnerID:   middleware.Subject(c),
		IsPremium: req.IsPremium,
		Price:     price,
		Payee:     req.Payee,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

func (h *Handler) access(c *gin.Context) {
	decision, err := h.svc.CheckAccess(c.Request.Context(), middleware.Subject(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	if decision.Verdict == AccessPaymentRequired {
		c.JSON(http.StatusPaymentRequired, decision)
		return
	}
	c.JSON(http.StatusOK, decision)
}

type purchaseRequest struct {
	Signature string `json:"signature" binding:"required"`
}

func (h *Handler) purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	purchase, err := h.svc.ConfirmPurchase(c.Request.Context(), middleware.Subject(c), c.Param("id"), req.Signature)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}
