// Package option carries composable query modifiers for the generic store.
package option

import (
	"strings"
	"time"

	"github.com/astralhq/keychain/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination fetches one row beyond the page size so the caller can
// detect whether more rows exist, and seeks past the cursor when present.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := p.PageSize
		if size <= 0 {
			size = 50
		}
		if size > 250 {
			size = 250
		}

		if token := strings.TrimSpace(p.PageToken); token != "" {
			if cursor, err := pagination.DecodeCursor(token); err == nil && cursor.RecordedAt != "" {
				if at, err := time.Parse(time.RFC3339Nano, cursor.RecordedAt); err == nil {
					// Rows can share a timestamp, so the id breaks the tie.
					// The matching query must also order by (recorded_at, id)
					// or rows on the boundary are skipped or repeated.
					if cursor.ID != "" {
						db = db.Where("recorded_at < ? OR (recorded_at = ? AND id < ?)", at, at, cursor.ID)
					} else {
						db = db.Where("recorded_at < ?", at)
					}
				}
			}
		}

		return db.Limit(size + 1)
	})
}

// QuerySortBy restricts sortable columns to an allow list.
type QuerySortBy struct {
	Allow map[string]bool
	Field string
	Desc  bool
}

// WithSortBy orders results by the requested column when allowed, falling
// back to the first allowed column descending.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(sort.Field)
		if field == "" || !sort.Allow[field] {
			for allowed := range sort.Allow {
				field = allowed
				break
			}
			sort.Desc = true
		}
		if field == "" {
			return db
		}
		direction := "asc"
		if sort.Desc {
			direction = "desc"
		}
		return db.Order(field + " " + direction)
	})
}

// WithLimit caps the number of rows returned.
func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}
