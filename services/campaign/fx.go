package campaign

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"sharemint-core/pkg/config"
)

var Module = fx.Module("campaign.module",
	fx.Provide(NewService, NewHandler),
)

var Gateway = fx.Module("campaign.server",
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler, cfg *config.Config) {
	h.Register(r, cfg)
}
