package tag

import (
	"go.uber.org/fx"
)

var Module = fx.Module("tag.module",
	fx.Provide(NewService),
)
