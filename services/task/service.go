package task

import (
	"context"
	"time"

	"taskplane/pkg/config"
	"taskplane/pkg/db/pagination"
	"taskplane/pkg/errutil"
	"taskplane/pkg/recurrence"
	"taskplane/pkg/repository"
	"taskplane/services/audit"
	"taskplane/services/internal/access"
	"taskplane/services/tag"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the task lifecycle engine. Every mutating command runs as one
// storage transaction spanning the ownership check, the entity mutation,
// any tag association changes, recurrence regeneration and the audit
// writes: either all of it commits or none of it does.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	cfg      *config.Config
	repo     repository.Repository[Task]
	tagRepo  repository.Repository[tag.Tag]
	recorder audit.Recorder
	history  *audit.Service
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Recorder audit.Recorder
	History  *audit.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		cfg:      p.Config,
		repo:     repository.ProvideStore[Task](p.DB),
		tagRepo:  repository.ProvideStore[tag.Tag](p.DB),
		recorder: p.Recorder,
		history:  p.History,
	}
}

// ListResult is one page of the query contract plus paging metadata.
type ListResult struct {
	Tasks    []*Task             `json:"tasks"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// Create validates the request, persists the task with its tag links and
// records the create event, all in one unit of work.
func (s *Service) Create(ctx context.Context, principal string, req CreateRequest) (*Task, error) {
	zapLog := s.logger(ctx)

	if err := req.validate(); err != nil {
		return nil, err
	}

	tagIDs := dedupe(req.TagIDs)
	tags, err := s.resolveOwnedTags(ctx, principal, tagIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &Task{
		ID:          s.node.Generate().String(),
		OwnerID:     principal,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		Recurrence:  req.Recurrence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Create(ctx, t); err != nil {
			return err
		}
		if err := insertTagLinks(ctx, tx, t.ID, tagIDs, now); err != nil {
			return err
		}

		event, err := audit.NewEvent(audit.EntityTask, t.ID, principal, audit.ActionCreate)
		if err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, event)
	}); err != nil {
		zapLog.Error("failed to create task", zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	t.Tags = tags
	return t, nil
}

// Get returns one task owned by the principal, tags included.
func (s *Service) Get(ctx context.Context, principal, taskID string) (*Task, error) {
	t, err := s.getWithAccessCheck(ctx, principal, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.loadTags(ctx, []*Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// List applies the query contract: filters, whitelisted sorting and offset
// pagination, always scoped to the principal and excluding deleted rows.
func (s *Service) List(ctx context.Context, principal string, filter ListFilter) (*ListResult, error) {
	zapLog := s.logger(ctx)

	if err := filter.validate(); err != nil {
		return nil, err
	}
	filter.Normalize(s.cfg.Query.DefaultPageSize, s.cfg.Query.MaxPageSize)

	now := time.Now().UTC()
	scoped := s.db.WithContext(ctx).Model(&Task{}).Scopes(filter.scope(principal, now))

	var total int64
	if err := scoped.Count(&total).Error; err != nil {
		zapLog.Error("failed to count tasks", zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	var tasks []*Task
	err := s.db.WithContext(ctx).Model(&Task{}).
		Scopes(filter.scope(principal, now)).
		Order(filter.orderExpr()).
		Limit(filter.PageSize).
		Offset(filter.Offset()).
		Find(&tasks).Error
	if err != nil {
		zapLog.Error("failed to list tasks", zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	if err := s.loadTags(ctx, tasks); err != nil {
		return nil, err
	}

	return &ListResult{
		Tasks:    tasks,
		PageInfo: pagination.BuildPageInfo(filter.Pagination, total),
	}, nil
}

// Export returns the full filtered task set with no pagination. It is a pure
// read-side consumer of the same query contract as List.
func (s *Service) Export(ctx context.Context, principal string, filter ListFilter) ([]*Task, error) {
	zapLog := s.logger(ctx)

	if err := filter.validate(); err != nil {
		return nil, err
	}

	var tasks []*Task
	err := s.db.WithContext(ctx).Model(&Task{}).
		Scopes(filter.scope(principal, time.Now().UTC())).
		Order(filter.orderExpr()).
		Find(&tasks).Error
	if err != nil {
		zapLog.Error("failed to export tasks", zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	if err := s.loadTags(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Update applies a partial edit. One audit event is written per field whose
// value actually changed; a request that changes nothing writes none.
func (s *Service) Update(ctx context.Context, principal, taskID string, req UpdateRequest) (*Task, error) {
	zapLog := s.logger(ctx)

	t, err := s.getWithAccessCheck(ctx, principal, taskID)
	if err != nil {
		return nil, err
	}

	if err := req.validate(); err != nil {
		return nil, err
	}

	values := map[string]any{}
	var events []*audit.Event

	addChange := func(field string, oldValue, newValue any) error {
		event, err := audit.NewFieldChange(audit.EntityTask, t.ID, principal, field, oldValue, newValue)
		if err != nil {
			return err
		}
		events = append(events, event)
		return nil
	}

	if req.Title != nil && *req.Title != t.Title {
		values["title"] = *req.Title
		if err := addChange("title", t.Title, *req.Title); err != nil {
			return nil, err
		}
	}
	if req.Description != nil && *req.Description != t.Description {
		values["description"] = *req.Description
		if err := addChange("description", t.Description, *req.Description); err != nil {
			return nil, err
		}
	}
	if req.Priority != nil && *req.Priority != t.Priority {
		values["priority"] = *req.Priority
		if err := addChange("priority", t.Priority, *req.Priority); err != nil {
			return nil, err
		}
	}
	if req.DueDate != nil && !equalTimePtr(req.DueDate, t.DueDate) {
		values["due_date"] = *req.DueDate
		if err := addChange("due_date", t.DueDate, *req.DueDate); err != nil {
			return nil, err
		}
	}
	if req.Recurrence != nil && *req.Recurrence != t.Recurrence {
		values["recurrence"] = *req.Recurrence
		if err := addChange("recurrence", t.Recurrence, *req.Recurrence); err != nil {
			return nil, err
		}
	}

	var newTagIDs []string
	replaceTags := false
	if req.TagIDs != nil {
		newTagIDs = dedupe(*req.TagIDs)
		currentIDs, err := s.currentTagIDs(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if !sameIDSet(currentIDs, newTagIDs) {
			replaceTags = true
			if _, err := s.resolveOwnedTags(ctx, principal, newTagIDs); err != nil {
				return nil, err
			}
			if err := addChange("tags", currentIDs, newTagIDs); err != nil {
				return nil, err
			}
		}
	}

	if len(values) == 0 && !replaceTags {
		if err := s.loadTags(ctx, []*Task{t}); err != nil {
			return nil, err
		}
		return t, nil
	}

	now := time.Now().UTC()
	values["updated_at"] = now

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Update(ctx, t.ID, values); err != nil {
			return err
		}
		if replaceTags {
			if err := tx.Where("task_id = ?", t.ID).Delete(&tag.TaskTag{}).Error; err != nil {
				return err
			}
			if err := insertTagLinks(ctx, tx, t.ID, newTagIDs, now); err != nil {
				return err
			}
		}
		return s.recorder.Record(ctx, tx, events...)
	}); err != nil {
		zapLog.Error("failed to update task", zap.String("task_id", t.ID), zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	return s.Get(ctx, principal, t.ID)
}

// Complete marks a task done. For a recurring task this is a compound
// transition: the completion, the successor creation with the same tag set,
// and both audit events commit together or not at all. Completing an
// already-completed task is a no-op.
func (s *Service) Complete(ctx context.Context, principal, taskID string) (*Task, *Task, error) {
	zapLog := s.logger(ctx)

	t, err := s.getWithAccessCheck(ctx, principal, taskID)
	if err != nil {
		return nil, nil, err
	}

	if t.IsCompleted {
		if err := s.loadTags(ctx, []*Task{t}); err != nil {
			return nil, nil, err
		}
		return t, nil, nil
	}

	now := time.Now().UTC()
	var successor *Task

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Update(ctx, t.ID, map[string]any{
			"is_completed": true,
			"completed_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}

		event, err := audit.NewEvent(audit.EntityTask, t.ID, principal, audit.ActionComplete)
		if err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, tx, event); err != nil {
			return err
		}

		if !t.Recurrence.Repeats() || t.DueDate == nil {
			return nil
		}

		nextDue, err := recurrence.NextDue(*t.DueDate, t.Recurrence, now)
		if err != nil {
			// A corrupt rule fails the whole completion; the task must not
			// end up completed with no successor.
			return errutil.ValidationFailed("cannot compute next occurrence", errutil.WithErr(err))
		}

		successor = &Task{
			ID:          s.node.Generate().String(),
			OwnerID:     t.OwnerID,
			Title:       t.Title,
			Description: t.Description,
			Priority:    t.Priority,
			DueDate:     &nextDue,
			Recurrence:  t.Recurrence,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.WithTrx(tx).Create(ctx, successor); err != nil {
			return err
		}

		tagIDs, err := currentTagIDsTx(tx, t.ID)
		if err != nil {
			return err
		}
		if err := insertTagLinks(ctx, tx, successor.ID, tagIDs, now); err != nil {
			return err
		}

		return s.recorder.Record(ctx, tx, audit.NewRecurringAutoCreate(successor.ID))
	}); err != nil {
		zapLog.Error("failed to complete task", zap.String("task_id", t.ID), zap.Error(err))
		return nil, nil, errutil.FromStorage(err)
	}

	t.IsCompleted = true
	t.CompletedAt = &now
	t.UpdatedAt = now

	if err := s.loadTags(ctx, []*Task{t}); err != nil {
		return nil, nil, err
	}
	if successor != nil {
		if err := s.loadTags(ctx, []*Task{successor}); err != nil {
			return nil, nil, err
		}
	}

	return t, successor, nil
}

// Uncomplete reopens a completed task. Reopening an open task is a no-op.
func (s *Service) Uncomplete(ctx context.Context, principal, taskID string) (*Task, error) {
	zapLog := s.logger(ctx)

	t, err := s.getWithAccessCheck(ctx, principal, taskID)
	if err != nil {
		return nil, err
	}

	if !t.IsCompleted {
		if err := s.loadTags(ctx, []*Task{t}); err != nil {
			return nil, err
		}
		return t, nil
	}

	now := time.Now().UTC()

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Update(ctx, t.ID, map[string]any{
			"is_completed": false,
			"completed_at": nil,
			"updated_at":   now,
		}); err != nil {
			return err
		}

		event, err := audit.NewEvent(audit.EntityTask, t.ID, principal, audit.ActionUncomplete)
		if err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, event)
	}); err != nil {
		zapLog.Error("failed to uncomplete task", zap.String("task_id", t.ID), zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	t.IsCompleted = false
	t.CompletedAt = nil
	t.UpdatedAt = now

	if err := s.loadTags(ctx, []*Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete soft-deletes the task. The row stays in storage; a second delete of
// the same task reads as NotFound because deleted rows leave default lookups.
func (s *Service) Delete(ctx context.Context, principal, taskID string) error {
	zapLog := s.logger(ctx)

	t, err := s.getWithAccessCheck(ctx, principal, taskID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Update(ctx, t.ID, map[string]any{
			"is_deleted": true,
			"deleted_at": now,
			"deleted_by": principal,
			"updated_at": now,
		}); err != nil {
			return err
		}

		event, err := audit.NewEvent(audit.EntityTask, t.ID, principal, audit.ActionDelete)
		if err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, event)
	}); err != nil {
		zapLog.Error("failed to delete task", zap.String("task_id", t.ID), zap.Error(err))
		return errutil.FromStorage(err)
	}

	return nil
}

// History returns the task's audit trail, newest first.
func (s *Service) History(ctx context.Context, principal, taskID string) ([]*audit.Event, error) {
	t, err := s.getWithAccessCheck(ctx, principal, taskID)
	if err != nil {
		return nil, err
	}
	return s.history.ListForEntity(ctx, audit.EntityTask, t.ID)
}

// getWithAccessCheck fetches the row by identifier ignoring the soft-delete
// flag so the ownership guard can tell a foreign task from a deleted one.
func (s *Service) getWithAccessCheck(ctx context.Context, principal, taskID string) (*Task, error) {
	t, err := s.repo.FindOne(ctx, &Task{ID: taskID})
	if err != nil {
		s.logger(ctx).Error("failed to fetch task", zap.String("task_id", taskID), zap.Error(err))
		return nil, errutil.FromStorage(err)
	}

	switch access.Decide(principal, t, t != nil) {
	case access.NotFound:
		return nil, errutil.NotFound("task not found")
	case access.Forbidden:
		return nil, errutil.Forbidden("task belongs to another user")
	}

	return t, nil
}

// resolveOwnedTags maps tag identifiers to the principal's tags. References
// to unknown or foreign tags are rejected before anything is persisted.
func (s *Service) resolveOwnedTags(ctx context.Context, principal string, tagIDs []string) ([]*tag.Tag, error) {
	if len(tagIDs) == 0 {
		return []*tag.Tag{}, nil
	}

	var tags []*tag.Tag
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", principal, tagIDs).
		Order("name_lower ASC").
		Find(&tags).Error
	if err != nil {
		return nil, errutil.FromStorage(err)
	}

	if len(tags) != len(tagIDs) {
		return nil, errutil.ValidationFailed("unknown tag reference",
			errutil.WithDetails(errutil.Detail{Field: "tag_ids", Message: "every tag must exist and belong to you"}))
	}

	return tags, nil
}

func (s *Service) currentTagIDs(ctx context.Context, taskID string) ([]string, error) {
	ids, err := currentTagIDsTx(s.db.WithContext(ctx), taskID)
	if err != nil {
		return nil, errutil.FromStorage(err)
	}
	return ids, nil
}

func currentTagIDsTx(tx *gorm.DB, taskID string) ([]string, error) {
	var ids []string
	err := tx.Model(&tag.TaskTag{}).
		Where("task_id = ?", taskID).
		Order("tag_id").
		Pluck("tag_id", &ids).Error
	return ids, err
}

func insertTagLinks(ctx context.Context, tx *gorm.DB, taskID string, tagIDs []string, now time.Time) error {
	if len(tagIDs) == 0 {
		return nil
	}
	links := make([]*tag.TaskTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		links = append(links, &tag.TaskTag{TaskID: taskID, TagID: id, CreatedAt: now})
	}
	return tx.WithContext(ctx).Create(links).Error
}

// loadTags attaches tag sets to tasks with one explicit join query.
func (s *Service) loadTags(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		t.Tags = []*tag.Tag{}
		ids = append(ids, t.ID)
	}

	type tagRow struct {
		TaskID    string    `gorm:"column:task_id"`
		ID        string    `gorm:"column:id"`
		OwnerID   string    `gorm:"column:owner_id"`
		Name      string    `gorm:"column:name"`
		NameLower string    `gorm:"column:name_lower"`
		CreatedAt time.Time `gorm:"column:created_at"`
	}

	var rows []tagRow
	err := s.db.WithContext(ctx).
		Table("task_tags tt").
		Select("tt.task_id, tags.id, tags.owner_id, tags.name, tags.name_lower, tags.created_at").
		Joins("JOIN tags ON tags.id = tt.tag_id").
		Where("tt.task_id IN ?", ids).
		Order("tags.name_lower ASC").
		Scan(&rows).Error
	if err != nil {
		s.logger(ctx).Error("failed to load task tags", zap.Error(err))
		return errutil.FromStorage(err)
	}

	byTask := make(map[string][]*tag.Tag, len(tasks))
	for _, r := range rows {
		byTask[r.TaskID] = append(byTask[r.TaskID], &tag.Tag{
			ID:        r.ID,
			OwnerID:   r.OwnerID,
			Name:      r.Name,
			NameLower: r.NameLower,
			CreatedAt: r.CreatedAt,
		})
	}
	for _, t := range tasks {
		if tags, ok := byTask[t.ID]; ok {
			t.Tags = tags
		}
	}

	return nil
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
