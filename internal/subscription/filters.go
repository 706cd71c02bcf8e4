package subscription

import (
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

type EventKindFilter struct {
	Kind EventKind
}

func (f EventKindFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("event_kind = ?", f.Kind)
}

type TargetFilter struct {
	Target Target
}

func (f TargetFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("target_kind = ? and target_id = ?", f.Target.Kind, f.Target.ID)
}

type ActiveFilter struct {
	Active bool
}

func (f ActiveFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("active = ?", f.Active)
}
