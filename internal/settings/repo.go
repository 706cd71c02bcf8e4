package settings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DetailsType string

const (
	DetailsTypeDeliveryConfig DetailsType = "delivery_config"
)

type Details struct {
	UserID    uuid.UUID   `gorm:"primaryKey"`
	Type      DetailsType `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Value     json.RawMessage `gorm:"type:jsonb;serializer:json"`
}

type DeliverySettings struct {
	Email  *bool `json:"email,omitempty"`
	Digest *bool `json:"digest,omitempty"`
}

func (Details) TableName() string {
	return "user_settings"
}

type DetailsRepo struct {
	db *gorm.DB
}

func NewDetailsRepo(db *gorm.DB) *DetailsRepo {
	return &DetailsRepo{
		db: db,
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Details{})
}

// GetByUserAndType returns gorm.ErrRecordNotFound as is when nothing is stored yet.
func (r *DetailsRepo) GetByUserAndType(ctx context.Context, userID uuid.UUID, dt DetailsType) (*Details, error) {
	var details Details

	err := r.db.
		WithContext(ctx).
		Where("user_id = ?", userID).
		Where("type = ?", dt).
		Take(&details).
		Error
	if err != nil {
		return nil, err
	}

	return &details, nil
}

func (r *DetailsRepo) StoreDetails(ctx context.Context, info *Details) error {
	now := time.Now()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	info.UpdatedAt = now

	return r.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(info).
		Error
}
