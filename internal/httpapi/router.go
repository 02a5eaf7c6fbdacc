package httpapi

import (
	"net/http"

	"taskplane/pkg/config"
	"taskplane/pkg/health"
	"taskplane/pkg/middleware"
	"taskplane/services/tag"
	"taskplane/services/task"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		middleware.NewVerifier,
		ProvideRouter,
	),
)

type RouterParams struct {
	fx.In
	Config   *config.Config
	Redis    *redis.Client `optional:"true"`
	Health   health.HealthService
	Verifier *middleware.Verifier
	Tasks    *task.Service
	Tags     *tag.Service
}

// ProvideRouter assembles the REST surface. Health probes stay open; every
// /v1 route requires a bearer token and runs behind the rate limiter.
func ProvideRouter(p RouterParams) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	v1 := r.Group("/v1",
		middleware.Auth(p.Verifier),
		middleware.RateLimit(p.Redis, p.Config),
	)

	tasks := &taskHandler{svc: p.Tasks}
	v1.POST("/tasks", tasks.create)
	v1.GET("/tasks", tasks.list)
	v1.GET("/tasks/export", tasks.export)
	v1.GET("/tasks/:id", tasks.get)
	v1.PATCH("/tasks/:id", tasks.update)
	v1.DELETE("/tasks/:id", tasks.remove)
	v1.POST("/tasks/:id/complete", tasks.complete)
	v1.POST("/tasks/:id/uncomplete", tasks.uncomplete)
	v1.GET("/tasks/:id/history", tasks.history)

	tags := &tagHandler{svc: p.Tags}
	v1.POST("/tags", tags.create)
	v1.GET("/tags", tags.list)
	v1.GET("/tags/:id", tags.get)
	v1.PATCH("/tags/:id", tags.rename)
	v1.DELETE("/tags/:id", tags.remove)
	v1.GET("/tags/:id/history", tags.history)

	return r
}
