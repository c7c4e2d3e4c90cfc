package campaign

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/currency"
	"sharemint-core/pkg/db/option"
	"sharemint-core/pkg/db/pagination"
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

	v1.POST("/campaigns", auth, h.create)
	v1.GET("/campaigns", auth, h.list)
	v1.GET("/campaigns/:id", h.get)
	v1.POST("/campaigns/:id/deactivate", auth, h.deactivate)
	v1.POST("/campaigns/:id/claims", auth, h.claim)
	v1.GET("/claims", auth, h.listClaims)
}

type createCampaignRequest struct {
	Name             string         `json:"name" binding:"required"`
	Description      string         `json:"description"`
	RewardSOL        string         `json:"reward_sol" binding:"required"`
	BudgetSOL        string         `json:"budget_sol" binding:"required"`
	MaxSharesPerUser *int           `json:"max_shares_per_user"`
	Metadata         map[string]any `json:"metadata"`
	ExpiresAt        *time.Time     `json:"expires_at"`
}

type campaignResponse struct {
	CampaignID       string     `json:"campaign_id"`
	Code             string     `json:"code,omitempty"`
	OwnerID          string     `json:"owner_id"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	RewardAmount     int64      `json:"reward_amount"`
	RewardSOL        string     `json:"reward_sol"`
	TotalBudget      int64      `json:"total_budget"`
	SpentBudget      int64      `json:"spent_budget"`
	RemainingSOL     string     `json:"remaining_sol"`
	MaxSharesPerUser *int       `json:"max_shares_per_user,omitempty"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

func toCampaignResponse(c *Campaign) campaignResponse {
	return campaignResponse{
		CampaignID:       c.CampaignID,
		Code:             c.Code,
		OwnerID:          c.OwnerID,
		Name:             c.Name,
		Description:      c.Description,
		RewardAmount:     c.RewardAmount,
		RewardSOL:        currency.FromLamports(c.RewardAmount).String(),
		TotalBudget:      c.TotalBudget,
		SpentBudget:      c.SpentBudget,
		RemainingSOL:     currency.FromLamports(c.RemainingBudget()).String(),
		MaxSharesPerUser: c.MaxSharesPerUser,
		IsActive:         c.IsActive,
		CreatedAt:        c.CreatedAt,
		ExpiresAt:        c.ExpiresAt,
	}
}

func parseSOL(field, value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, errutil.ValidationFailed(field+" is not a valid amount", err,
			errutil.WithDetails(errutil.Detail{Field: field, Message: "must be a decimal SOL amount"}))
	}
	lamports, err := currency.ToLamports(d)
	if err != nil {
		return 0, errutil.ValidationFailed(field+" is not a valid amount", err,
			errutil.WithDetails(errutil.Detail{Field: field, Message: err.Error()}))
	}
	return lamports, nil
}

func (h *Handler) create(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	reward, err := parseSOL("reward_sol", req.RewardSOL)
	if err != nil {
		c.Error(err)
		return
	}
	budget, err := parseSOL("budget_sol", req.BudgetSOL)
	if err != nil {
		c.Error(err)
		return
	}

	created, err := h.svc.CreateCampaign(c.Request.Context(), CreateCampaignInput{
		OwnerID:          middleware.Subject(c),
		Name:             req.Name,
		Description:      req.Description,
		RewardAmount:     reward,
		TotalBudget:      budget,
		MaxSharesPerUser: req.MaxSharesPerUser,
		Metadata:         req.Metadata,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toCampaignResponse(created))
}

func (h *Handler) get(c *gin.Context) {
	found, err := h.svc.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toCampaignResponse(found))
}

func (h *Handler) list(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", err, errutil.WithErr(err)))
		return
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(page.Limit + 1),
	}
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			c.Error(errutil.BadRequest("invalid cursor", err, errutil.WithErr(err)))
			return
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field: "created_at", Operator: option.LT, Value: cursor.CreatedAt,
		}))
	}

	items, err := h.svc.ListCampaigns(c.Request.Context(), middleware.Subject(c), opts...)
	if err != nil {
		c.Error(err)
		return
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(page.Limit), func(item *Campaign) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
			ID:        item.CampaignID,
		})
		return cursor
	})
	if len(items) > page.Limit {
		items = items[:page.Limit]
	}

	out := make([]campaignResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toCampaignResponse(item))
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out, "page_info": pageInfo})
}

func (h *Handler) deactivate(c *gin.Context) {
	updated, err := h.svc.DeactivateCampaign(c.Request.Context(), middleware.Subject(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toCampaignResponse(updated))
}

type claimResponse struct {
	ClaimID      string     `json:"claim_id"`
	CampaignID   string     `json:"campaign_id"`
	SubjectID    string     `json:"subject_id"`
	Seq          int        `json:"seq"`
	Platform     string     `json:"platform"`
	PostURL      string     `json:"post_url"`
	RewardAmount int64      `json:"reward_amount"`
	RewardSOL    string     `json:"reward_sol"`
	Status       string     `json:"status"`
	IsClaimed    bool       `json:"is_claimed"`
	VerifiedAt   time.Time  `json:"verified_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
}

func toClaimResponse(e *ClaimEntry) claimResponse {
	return claimResponse{
		ClaimID:      e.ClaimID,
		CampaignID:   e.CampaignID,
		SubjectID:    e.SubjectID,
		Seq:          e.Seq,
		Platform:     e.Platform,
		PostURL:      e.PostURL,
		RewardAmount: e.RewardAmount,
		RewardSOL:    currency.FromLamports(e.RewardAmount).String(),
		Status:       string(e.Status),
		IsClaimed:    e.IsClaimed,
		VerifiedAt:   e.VerifiedAt,
		ClaimedAt:    e.ClaimedAt,
	}
}

func (h *Handler) claim(c *gin.Context) {
	var ev Evidence
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	entry, err := h.svc.RecordClaim(c.Request.Context(), middleware.Subject(c), c.Param("id"), ev)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toClaimResponse(entry))
}

func (h *Handler) listClaims(c *gin.Context) {
	claims, err := h.svc.ListClaims(c.Request.Context(), middleware.Subject(c),
		option.WithSortBy(option.QuerySortBy{SortBy: "verified_at", OrderBy: "desc"}))
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]claimResponse, 0, len(claims))
	for _, entry := range claims {
		out = append(out, toClaimResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{"claims": out})
}
