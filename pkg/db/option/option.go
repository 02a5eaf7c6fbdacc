package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm query before it is executed by a repository.
type QueryOption func(*gorm.DB) *gorm.DB

func Apply(tx *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		tx = opt(tx)
	}
	return tx
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		column := sort.SortBy
		if column == "" {
			column = "created_at"
		}
		direction := strings.ToUpper(sort.OrderBy)
		if direction != "ASC" && direction != "DESC" {
			direction = "ASC"
		}
		return tx.Order(fmt.Sprintf("%s %s", column, direction))
	}
}

func WithLimit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	}
}

func WithOffset(offset int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	}
}

func WithPreload(association string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Preload(association)
	}
}

// WithUnscoped bypasses default soft-delete scoping for existence checks.
func WithUnscoped() QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Unscoped()
	}
}
