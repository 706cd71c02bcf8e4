package notification

import (
	"time"

	"gorm.io/gorm"
)

type Filter interface {
	Apply(*gorm.DB) *gorm.DB
}

type PageFilter struct {
	Offset int
	Limit  int
}

func (f PageFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Offset(f.Offset).Limit(f.Limit)
}

type UserIDFilter struct {
	ID string
}

func (f UserIDFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", f.ID)
}

// UnreadFilter skips filtering when Unread is nil.
type UnreadFilter struct {
	Unread *bool
}

func (f UnreadFilter) Apply(db *gorm.DB) *gorm.DB {
	if f.Unread == nil {
		return db
	}

	if *f.Unread {
		return db.Where("read_at is null")
	}

	return db.Where("read_at is not null")
}

type CreatedAfterFilter struct {
	From time.Time
}

func (f CreatedAfterFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_at >= ?", f.From)
}
