package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.openly.dev/pointy"
	"gorm.io/gorm"
)

type DetailsManipulator interface {
	GetByUserAndType(ctx context.Context, userID uuid.UUID, dt DetailsType) (*Details, error)
	StoreDetails(ctx context.Context, info *Details) error
}

// Service keeps per user delivery preferences. Users without stored
// preferences get every channel.
type Service struct {
	details DetailsManipulator
}

func NewService(dm DetailsManipulator) *Service {
	return &Service{
		details: dm,
	}
}

func (s *Service) GetDeliverySettings(ctx context.Context, userID uuid.UUID) (*DeliverySettings, error) {
	details, err := s.details.GetByUserAndType(ctx, userID, DetailsTypeDeliveryConfig)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return getDeliveryDefaultSettings(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("get delivery details: %w", err)
	}

	dsd := getDeliveryDefaultSettings()
	if err = json.Unmarshal(details.Value, dsd); err != nil {
		return nil, fmt.Errorf("unmarshal delivery details: %w", err)
	}

	return dsd, nil
}

// StoreDeliverySettings merges the non nil fields of req into the stored preferences.
func (s *Service) StoreDeliverySettings(ctx context.Context, userID uuid.UUID, req DeliverySettings) (*DeliverySettings, error) {
	dsd, err := s.GetDeliverySettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		dsd.Email = req.Email
	}

	if req.Digest != nil {
		dsd.Digest = req.Digest
	}

	raw, err := json.Marshal(dsd)
	if err != nil {
		return nil, fmt.Errorf("marshal delivery details: %w", err)
	}

	err = s.details.StoreDetails(ctx, &Details{
		UserID: userID,
		Type:   DetailsTypeDeliveryConfig,
		Value:  raw,
	})
	if err != nil {
		return nil, fmt.Errorf("store delivery details: %w", err)
	}

	return dsd, nil
}

func (s *Service) EmailEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	dsd, err := s.GetDeliverySettings(ctx, userID)
	if err != nil {
		return false, err
	}

	return *dsd.Email, nil
}

func (s *Service) DigestEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	dsd, err := s.GetDeliverySettings(ctx, userID)
	if err != nil {
		return false, err
	}

	return *dsd.Digest, nil
}

func getDeliveryDefaultSettings() *DeliverySettings {
	return &DeliverySettings{
		Email:  pointy.Bool(true),
		Digest: pointy.Bool(true),
	}
}
