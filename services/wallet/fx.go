package wallet

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"sharemint-core/pkg/config"
)

var Module = fx.Module("wallet.module",
	fx.Provide(NewService, NewHandler),
)

var Gateway = fx.Module("wallet.server",
	fx.Invoke(registerRoutes),
)

var Worker = fx.Module("wallet.worker",
	fx.Invoke(registerTaskHandlers),
)

func registerRoutes(r *gin.Engine, h *Handler, cfg *config.Config) {
	h.Register(r, cfg)
}
