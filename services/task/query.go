package task

import (
	"time"

	"taskplane/pkg/db/pagination"
	"taskplane/pkg/errutil"

	"gorm.io/gorm"
)

// ListFilter is the query contract consumed by the list and export surfaces.
type ListFilter struct {
	Completed *bool      `form:"completed"`
	Priority  *Priority  `form:"priority"`
	TagID     string     `form:"tag_id"`
	DueFrom   *time.Time `form:"due_from" time_format:"2006-01-02T15:04:05Z07:00"`
	DueTo     *time.Time `form:"due_to" time_format:"2006-01-02T15:04:05Z07:00"`
	Search    string     `form:"search"`
	Overdue   bool       `form:"overdue"`
	SortBy    string     `form:"sort_by"`
	SortOrder string     `form:"sort_order"`

	pagination.Pagination
}

// sortColumns whitelists sortable keys. Priority sorts by severity rather
// than alphabetically.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"due_date":   "due_date",
	"title":      "title",
	"priority":   "CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END",
}

func (f *ListFilter) validate() error {
	var details []errutil.Detail

	if f.Priority != nil && !f.Priority.Valid() {
		details = append(details, errutil.Detail{Field: "priority", Message: "must be one of low, medium, high"})
	}

	if f.SortBy == "" {
		f.SortBy = "created_at"
	}
	if _, ok := sortColumns[f.SortBy]; !ok {
		details = append(details, errutil.Detail{Field: "sort_by", Message: "must be one of created_at, due_date, title, priority"})
	}

	switch f.SortOrder {
	case "":
		f.SortOrder = "desc"
	case "asc", "desc":
	default:
		details = append(details, errutil.Detail{Field: "sort_order", Message: "must be asc or desc"})
	}

	if len(details) > 0 {
		return errutil.ValidationFailed("invalid list query", errutil.WithDetails(details...))
	}
	return nil
}

// scope applies ownership, soft-delete exclusion and every requested filter.
func (f *ListFilter) scope(principal string, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("tasks.owner_id = ? AND tasks.is_deleted = ?", principal, false)

		if f.Completed != nil {
			tx = tx.Where("tasks.is_completed = ?", *f.Completed)
		}
		if f.Priority != nil {
			tx = tx.Where("tasks.priority = ?", *f.Priority)
		}
		if f.TagID != "" {
			tx = tx.Where("EXISTS (SELECT 1 FROM task_tags tt WHERE tt.task_id = tasks.id AND tt.tag_id = ?)", f.TagID)
		}
		if f.DueFrom != nil {
			tx = tx.Where("tasks.due_date >= ?", *f.DueFrom)
		}
		if f.DueTo != nil {
			tx = tx.Where("tasks.due_date <= ?", *f.DueTo)
		}
		if f.Search != "" {
			pattern := "%" + f.Search + "%"
			tx = tx.Where("tasks.title LIKE ? OR tasks.description LIKE ?", pattern, pattern)
		}
		if f.Overdue {
			tx = tx.Where("tasks.due_date IS NOT NULL AND tasks.due_date < ? AND tasks.is_completed = ?", now, false)
		}

		return tx
	}
}

func (f *ListFilter) orderExpr() string {
	column := sortColumns[f.SortBy]
	direction := "DESC"
	if f.SortOrder == "asc" {
		direction = "ASC"
	}
	return column + " " + direction
}
