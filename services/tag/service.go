package tag

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskplane/pkg/errutil"
	"taskplane/pkg/repository"
	"taskplane/services/audit"
	"taskplane/services/internal/access"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	repo     repository.Repository[Tag]
	recorder audit.Recorder
	history  *audit.Service
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Recorder audit.Recorder
	History  *audit.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		repo:     repository.ProvideStore[Tag](p.DB),
		recorder: p.Recorder,
		history:  p.History,
	}
}

// Create makes a new tag for the principal. Names collide case-insensitively
// per owner; a collision is a Conflict, not a silent reuse.
func (s *Service) Create(ctx context.Context, principal, name string) (*Tag, error) {
	zapLog := s.logger(ctx)

	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindOne(ctx, &Tag{OwnerID: principal, NameLower: strings.ToLower(name)})
	if err != nil {
		zapLog.Error("failed to check tag uniqueness", zap.Error(err))
		return nil, errutil.FromStorage(err)
	}
	if existing != nil {
		return nil, errutil.Conflict("a tag with this name already exists")
	}

	t := &Tag{
		ID:        s.node.Generate().String(),
		OwnerID:   principal,
		Name:      name,
		NameLower: strings.ToLower(name),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Create(ctx, t); err != nil {
			return err
		}

		event, err := audit.NewEvent(audit.EntityTag, t.ID, principal, audit.ActionCreate)
		if err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, event)
	}); err != nil {
		if duplicateName(err) {
			return nil, errutil.Conflict("a tag with this name already exists")
		}
		zapLog.Error("failed to create tag", zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	return t, nil
}

// duplicateName reports whether err is the unique-index violation on
// (owner_id, name_lower). The pre-insert lookup cannot see a concurrent
// writer, so the index is the real uniqueness guarantee and its violation
// must read as a name collision, not a storage fault.
func duplicateName(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Get returns one tag owned by the principal.
func (s *Service) Get(ctx context.Context, principal, tagID string) (*Tag, error) {
	return s.getWithAccessCheck(ctx, principal, tagID)
}

// List returns every tag of the principal together with the number of live
// (not soft-deleted) tasks it is attached to. The count is computed, never stored.
func (s *Service) List(ctx context.Context, principal string) ([]*TagWithCount, error) {
	zapLog := s.logger(ctx)

	var out []*TagWithCount
	err := s.db.WithContext(ctx).
		Model(&Tag{}).
		Select("tags.*, COUNT(t.id) AS task_count").
		Joins("LEFT JOIN task_tags tt ON tt.tag_id = tags.id").
		Joins("LEFT JOIN tasks t ON t.id = tt.task_id AND t.is_deleted = ?", false).
		Where("tags.owner_id = ?", principal).
		Group("tags.id").
		Order("tags.name_lower ASC").
		Find(&out).Error
	if err != nil {
		zapLog.Error("failed to list tags", zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	return out, nil
}

// Rename changes a tag's name, keeping per-owner uniqueness, and records the
// change as a single-field update event.
func (s *Service) Rename(ctx context.Context, principal, tagID, newName string) (*Tag, error) {
	zapLog := s.logger(ctx)

	t, err := s.getWithAccessCheck(ctx, principal, tagID)
	if err != nil {
		return nil, err
	}

	newName, err = normalizeName(newName)
	if err != nil {
		return nil, err
	}

	if t.Name == newName {
		return t, nil
	}

	existing, err := s.repo.FindOne(ctx, &Tag{OwnerID: principal, NameLower: strings.ToLower(newName)})
	if err != nil {
		zapLog.Error("failed to check tag uniqueness", zap.Error(err))
		return nil, errutil.FromStorage(err)
	}
	if existing != nil && existing.ID != t.ID {
		return nil, errutil.Conflict("a tag with this name already exists")
	}

	oldName := t.Name

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Update(ctx, t.ID, map[string]any{
			"name":       newName,
			"name_lower": strings.ToLower(newName),
		}); err != nil {
			return err
		}

		event, err := audit.NewFieldChange(audit.EntityTag, t.ID, principal, "name", oldName, newName)
		if err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, event)
	}); err != nil {
		if duplicateName(err) {
			return nil, errutil.Conflict("a tag with this name already exists")
		}
		zapLog.Error("failed to rename tag", zap.String("tag_id", t.ID), zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	t.Name = newName
	t.NameLower = strings.ToLower(newName)
	return t, nil
}

// Delete removes the tag and cascades over its task associations only; the
// tasks themselves are untouched.
func (s *Service) Delete(ctx context.Context, principal, tagID string) error {
	zapLog := s.logger(ctx)

	t, err := s.getWithAccessCheck(ctx, principal, tagID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tag_id = ?", t.ID).Delete(&TaskTag{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Tag{}, "id = ?", t.ID).Error; err != nil {
			return err
		}

		event, err := audit.NewEvent(audit.EntityTag, t.ID, principal, audit.ActionDelete)
		if err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, event)
	}); err != nil {
		zapLog.Error("failed to delete tag", zap.String("tag_id", t.ID), zap.Error(err))
		return errutil.FromStorage(err)
	}

	return nil
}

// History returns the tag's audit trail, newest first.
func (s *Service) History(ctx context.Context, principal, tagID string) ([]*audit.Event, error) {
	t, err := s.getWithAccessCheck(ctx, principal, tagID)
	if err != nil {
		return nil, err
	}
	return s.history.ListForEntity(ctx, audit.EntityTag, t.ID)
}

func (s *Service) getWithAccessCheck(ctx context.Context, principal, tagID string) (*Tag, error) {
	t, err := s.repo.FindOne(ctx, &Tag{ID: tagID})
	if err != nil {
		s.logger(ctx).Error("failed to fetch tag", zap.String("tag_id", tagID), zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	switch access.Decide(principal, t, t != nil) {
	case access.NotFound:
		return nil, errutil.NotFound("tag not found")
	case access.Forbidden:
		return nil, errutil.Forbidden("tag belongs to another user")
	}

	return t, nil
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}
