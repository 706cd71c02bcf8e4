package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{})
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user := User{ID: id}
	request := r.db.WithContext(ctx).Take(&user)
	if err := request.Error; err != nil {
		return nil, fmt.Errorf("get user by id #%s: %w", id, err)
	}

	return &user, nil
}

func (r *Repo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var cnt int64
	err := r.db.
		WithContext(ctx).
		Model(&User{}).
		Where("id = ?", id).
		Count(&cnt).
		Error
	if err != nil {
		return false, fmt.Errorf("count user #%s: %w", id, err)
	}

	return cnt > 0, nil
}
