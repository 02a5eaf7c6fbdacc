package task

import (
	"strings"
	"time"
	"unicode/utf8"

	"taskplane/pkg/errutil"
	"taskplane/pkg/recurrence"
	"taskplane/services/tag"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxTagsPerTask       = 10
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) String() string {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return string(p)
	default:
		return ""
	}
}

func (p Priority) Valid() bool {
	return p.String() != ""
}

// Task is a unit of work owned by exactly one principal. The owner is fixed
// at creation; soft deletion hides the row from default reads but never
// removes it. Tag links live in the task_tags join table and are loaded with
// explicit queries, not declarative associations.
type Task struct {
	ID          string          `gorm:"column:id;primaryKey" json:"id"`
	OwnerID     string          `gorm:"column:owner_id;index:idx_tasks_owner_deleted;index:idx_tasks_owner_completed;index:idx_tasks_owner_due;index:idx_tasks_owner_priority" json:"owner_id"`
	Title       string          `gorm:"column:title;size:200" json:"title"`
	Description string          `gorm:"column:description;size:2000" json:"description"`
	Priority    Priority        `gorm:"column:priority;default:medium;index:idx_tasks_owner_priority" json:"priority"`
	DueDate     *time.Time      `gorm:"column:due_date;index:idx_tasks_owner_due" json:"due_date"`
	Recurrence  recurrence.Rule `gorm:"column:recurrence;default:none" json:"recurrence"`
	IsCompleted bool            `gorm:"column:is_completed;index:idx_tasks_owner_completed" json:"is_completed"`
	CompletedAt *time.Time      `gorm:"column:completed_at" json:"completed_at"`
	IsDeleted   bool            `gorm:"column:is_deleted;index:idx_tasks_owner_deleted" json:"-"`
	DeletedAt   *time.Time      `gorm:"column:deleted_at" json:"-"`
	DeletedBy   *string         `gorm:"column:deleted_by" json:"-"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updated_at"`

	Tags []*tag.Tag `gorm:"-" json:"tags"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) OwnedBy() string { return t.OwnerID }
func (t *Task) Removed() bool   { return t.IsDeleted }

// IsOverdue reports whether the task is past due and still open.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.IsCompleted {
		return false
	}
	return now.After(*t.DueDate)
}

// CreateRequest carries the caller-supplied fields for a new task.
type CreateRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    Priority        `json:"priority"`
	DueDate     *time.Time      `json:"due_date"`
	Recurrence  recurrence.Rule `json:"recurrence"`
	TagIDs      []string        `json:"tag_ids"`
}

func (r *CreateRequest) validate() error {
	var details []errutil.Detail

	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		details = append(details, errutil.Detail{Field: "title", Message: "must not be empty"})
	} else if utf8.RuneCountInString(r.Title) > maxTitleLength {
		details = append(details, errutil.Detail{Field: "title", Message: "must be at most 200 characters"})
	}

	if utf8.RuneCountInString(r.Description) > maxDescriptionLength {
		details = append(details, errutil.Detail{Field: "description", Message: "must be at most 2000 characters"})
	}

	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if !r.Priority.Valid() {
		details = append(details, errutil.Detail{Field: "priority", Message: "must be one of low, medium, high"})
	}

	if r.Recurrence == "" {
		r.Recurrence = recurrence.None
	}
	if !r.Recurrence.Valid() {
		details = append(details, errutil.Detail{Field: "recurrence", Message: "must be one of none, daily, weekly, monthly"})
	}

	if len(dedupe(r.TagIDs)) > maxTagsPerTask {
		details = append(details, errutil.Detail{Field: "tag_ids", Message: "a task can carry at most 10 tags"})
	}

	if len(details) > 0 {
		return errutil.ValidationFailed("invalid task", errutil.WithDetails(details...))
	}
	return nil
}

// UpdateRequest mutates a subset of task fields. Nil pointers mean
// "leave untouched"; TagIDs nil keeps the current tag set.
type UpdateRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Priority    *Priority        `json:"priority"`
	DueDate     *time.Time       `json:"due_date"`
	Recurrence  *recurrence.Rule `json:"recurrence"`
	TagIDs      *[]string        `json:"tag_ids"`
}

func (r *UpdateRequest) validate() error {
	var details []errutil.Detail

	if r.Title != nil {
		*r.Title = strings.TrimSpace(*r.Title)
		if *r.Title == "" {
			details = append(details, errutil.Detail{Field: "title", Message: "must not be empty"})
		} else if utf8.RuneCountInString(*r.Title) > maxTitleLength {
			details = append(details, errutil.Detail{Field: "title", Message: "must be at most 200 characters"})
		}
	}

	if r.Description != nil && utf8.RuneCountInString(*r.Description) > maxDescriptionLength {
		details = append(details, errutil.Detail{Field: "description", Message: "must be at most 2000 characters"})
	}

	if r.Priority != nil && !r.Priority.Valid() {
		details = append(details, errutil.Detail{Field: "priority", Message: "must be one of low, medium, high"})
	}

	if r.Recurrence != nil && !r.Recurrence.Valid() {
		details = append(details, errutil.Detail{Field: "recurrence", Message: "must be one of none, daily, weekly, monthly"})
	}

	if r.TagIDs != nil && len(dedupe(*r.TagIDs)) > maxTagsPerTask {
		details = append(details, errutil.Detail{Field: "tag_ids", Message: "a task can carry at most 10 tags"})
	}

	if len(details) > 0 {
		return errutil.ValidationFailed("invalid task update", errutil.WithDetails(details...))
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
