package tag

import (
	"strings"
	"time"
	"unicode/utf8"

	"taskplane/pkg/errutil"
)

const maxNameLength = 50

// Tag is a user-scoped label. Uniqueness is per (owner, lowercased name);
// the normalised name is persisted so the database can enforce it.
type Tag struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	OwnerID   string    `gorm:"column:owner_id;index;uniqueIndex:uk_tags_owner_name" json:"owner_id"`
	Name      string    `gorm:"column:name" json:"name"`
	NameLower string    `gorm:"column:name_lower;uniqueIndex:uk_tags_owner_name" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Tag) TableName() string {
	return "tags"
}

func (t *Tag) OwnedBy() string { return t.OwnerID }

// Removed is always false: tags are hard-deleted, never soft-deleted.
func (t *Tag) Removed() bool { return false }

// TaskTag is the task<->tag join row. Both sides belong to the same owner;
// the services enforce that, the storage layer does not assume it.
type TaskTag struct {
	TaskID    string    `gorm:"column:task_id;primaryKey" json:"task_id"`
	TagID     string    `gorm:"column:tag_id;primaryKey" json:"tag_id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (TaskTag) TableName() string {
	return "task_tags"
}

// TagWithCount is the list projection: a tag plus how many live tasks use it.
type TagWithCount struct {
	Tag
	TaskCount int64 `gorm:"column:task_count" json:"task_count"`
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errutil.ValidationFailed("tag name is required",
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "must not be empty"}))
	}
	// Limits count characters, not bytes; multibyte names are legitimate.
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", errutil.ValidationFailed("tag name too long",
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "must be at most 50 characters"}))
	}
	return name, nil
}
