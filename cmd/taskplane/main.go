package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskplane/internal/httpapi"
	"taskplane/pkg/config"
	"taskplane/pkg/db"
	"taskplane/pkg/gen"
	"taskplane/pkg/hashistack/secretmanager"
	"taskplane/pkg/health"
	"taskplane/pkg/logger"
	"taskplane/pkg/otelcol"
	"taskplane/pkg/profiling"
	"taskplane/pkg/redis"
	"taskplane/pkg/server"
	"taskplane/services/audit"
	"taskplane/services/tag"
	"taskplane/services/task"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		health.Module,
		audit.Module,
		tag.Module,
		task.Module,
		httpapi.Module,
		fx.Provide(
			server.ProvideHTTPServer,
			server.ProvideGRPCServer,
		),
		fx.Invoke(
			db.Otel,
			db.Metric,
			migrate,
			server.Run,
			server.StartGRPCServer,
		),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&task.Task{},
		&tag.Tag{},
		&tag.TaskTag{},
		&audit.Event{},
	)
}
