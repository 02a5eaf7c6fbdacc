package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// NewNode builds the process-wide snowflake node used for entity and audit
// event identifiers. Single-node deployments use node 1.
func NewNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

var Module = fx.Module("gen",
	fx.Provide(NewNode),
)
