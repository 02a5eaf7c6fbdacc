package audit

import (
	"context"
	"time"

	"taskplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Recorder appends audit events. Immutability is enforced by omission: this
// is the only write surface over audit_events and it only inserts.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, events ...*Event) error
}

type gormRecorder struct {
	node *snowflake.Node
	repo repository.Repository[Event]
}

func NewRecorder(db *gorm.DB, node *snowflake.Node) Recorder {
	return &gormRecorder{
		node: node,
		repo: repository.ProvideStore[Event](db),
	}
}

// Record stamps identity and commit-order metadata onto the events and
// appends them within the caller's transaction. Passing the engine's tx
// handle keeps the mutation and its audit trail in one unit of work.
func (r *gormRecorder) Record(ctx context.Context, tx *gorm.DB, events ...*Event) error {
	now := time.Now().UTC()
	for _, e := range events {
		if e.ID == "" {
			e.ID = r.node.Generate().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
	}
	return r.repo.WithTrx(tx).BatchCreate(ctx, events)
}
