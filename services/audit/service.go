package audit

import (
	"context"

	"taskplane/pkg/db/option"
	"taskplane/pkg/errutil"
	"taskplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the read side of the audit log. Callers are expected to have
// already verified ownership of the entity whose history they request.
type Service struct {
	repo repository.Repository[Event]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		repo: repository.ProvideStore[Event](p.DB),
	}
}

// ListForEntity returns the full mutation history of one entity, newest first.
func (s *Service) ListForEntity(ctx context.Context, entityType EntityType, entityID string) ([]*Event, error) {
	span := trace.SpanFromContext(ctx)

	events, err := s.repo.Find(ctx, &Event{
		EntityType: entityType,
		EntityID:   entityID,
	},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "DESC"}),
		// Snowflake IDs are time-ordered; break timestamp ties deterministically.
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "DESC"}),
	)
	if err != nil {
		zap.L().Error("failed to list audit events",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("entity_type", entityType.String()),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
		return nil, errutil.FromStorage(err)
	}

	return events, nil
}
