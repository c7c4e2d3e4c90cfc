package premium

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"sharemint-core/pkg/config"
)

var Module = fx.Module("premium.module",
	fx.Provide(NewService, NewHandler),
)

var Gateway = fx.Module("premium.server",
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler, cfg *config.Config) {
	h.Register(r, cfg)
}
