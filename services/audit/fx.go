package audit

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("audit.module",
	fx.Provide(
		NewService,
		provideRecorder,
	),
)

func provideRecorder(db *gorm.DB, node *snowflake.Node) Recorder {
	return NewRecorder(db, node)
}
