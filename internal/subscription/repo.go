package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the data access contract for subscription rows.
type Store interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID, kind EventKind, target Target) (*Subscription, error)
	Get(ctx context.Context, userID uuid.UUID, kind EventKind, target Target) (*Subscription, error)
	SetActive(ctx context.Context, userID uuid.UUID, kind EventKind, target Target, active bool) error
	SetActiveForUsers(ctx context.Context, kind EventKind, targets []Target, users []uuid.UUID, active bool) error
	DeleteWhere(ctx context.Context, kind EventKind, targets []Target, users []uuid.UUID) error
	ListActiveSubscribers(ctx context.Context, kind EventKind, target Target) ([]uuid.UUID, error)
	GetByFilters(ctx context.Context, filters []Filter) (SubscriptionList, error)
	Transaction(ctx context.Context, fn func(Store) error) error
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Subscription{})
}

// GetOrCreate inserts an active row or reactivates the existing one in a single
// statement, so concurrent callers for the same key converge on the unique index.
func (r *Repo) GetOrCreate(ctx context.Context, userID uuid.UUID, kind EventKind, target Target) (*Subscription, error) {
	now := time.Now()
	item := Subscription{
		ID:         uuid.New(),
		CreatedAt:  now,
		UpdatedAt:  now,
		UserID:     userID,
		EventKind:  kind,
		TargetKind: target.Kind,
		TargetID:   target.ID,
		Active:     true,
	}

	err := r.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "event_kind"},
				{Name: "target_kind"},
				{Name: "target_id"},
			},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"active":     true,
				"updated_at": now,
			}),
		}).
		Create(&item).
		Error
	if err != nil {
		return nil, storageErr("upsert subscription", err)
	}

	return r.Get(ctx, userID, kind, target)
}

func (r *Repo) Get(ctx context.Context, userID uuid.UUID, kind EventKind, target Target) (*Subscription, error) {
	var res Subscription
	err := r.db.
		WithContext(ctx).
		Where("user_id = ? and event_kind = ? and target_kind = ? and target_id = ?", userID, kind, target.Kind, target.ID).
		Take(&res).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("get subscription", err)
	}

	return &res, nil
}

func (r *Repo) SetActive(ctx context.Context, userID uuid.UUID, kind EventKind, target Target, active bool) error {
	err := r.db.
		WithContext(ctx).
		Model(&Subscription{}).
		Where("user_id = ? and event_kind = ? and target_kind = ? and target_id = ?", userID, kind, target.Kind, target.ID).
		Updates(map[string]interface{}{
			"active":     active,
			"updated_at": time.Now(),
		}).
		Error

	return storageErr("set subscription active", err)
}

// SetActiveForUsers toggles every row matching the kind, any of the targets and
// any of the users. A nil users slice matches all users.
func (r *Repo) SetActiveForUsers(ctx context.Context, kind EventKind, targets []Target, users []uuid.UUID, active bool) error {
	if len(targets) == 0 || (users != nil && len(users) == 0) {
		return nil
	}

	db := r.db.
		WithContext(ctx).
		Model(&Subscription{}).
		Where("event_kind = ?", kind)
	db = whereTargets(db, targets)
	if users != nil {
		db = db.Where("user_id in ?", users)
	}

	err := db.Updates(map[string]interface{}{
		"active":     active,
		"updated_at": time.Now(),
	}).Error

	return storageErr("bulk set subscription active", err)
}

// DeleteWhere removes rows for the targets; a nil users slice matches all users.
func (r *Repo) DeleteWhere(ctx context.Context, kind EventKind, targets []Target, users []uuid.UUID) error {
	if len(targets) == 0 || (users != nil && len(users) == 0) {
		return nil
	}

	db := r.db.
		WithContext(ctx).
		Where("event_kind = ?", kind)
	db = whereTargets(db, targets)
	if users != nil {
		db = db.Where("user_id in ?", users)
	}

	return storageErr("delete subscriptions", db.Delete(&Subscription{}).Error)
}

// ListActiveSubscribers returns users with an active row for exactly this target.
func (r *Repo) ListActiveSubscribers(ctx context.Context, kind EventKind, target Target) ([]uuid.UUID, error) {
	var users []uuid.UUID
	err := r.db.
		WithContext(ctx).
		Model(&Subscription{}).
		Where("event_kind = ? and target_kind = ? and target_id = ? and active = ?", kind, target.Kind, target.ID, true).
		Distinct("user_id").
		Pluck("user_id", &users).
		Error
	if err != nil {
		return nil, storageErr("list active subscribers", err)
	}

	return users, nil
}

func (r *Repo) GetByFilters(ctx context.Context, filters []Filter) (SubscriptionList, error) {
	db := r.db.WithContext(ctx).Model(&Subscription{})
	for _, f := range filters {
		if _, ok := f.(PageFilter); ok {
			continue
		}
		db = f.Apply(db)
	}

	var cnt int64
	if err := db.Count(&cnt).Error; err != nil {
		return SubscriptionList{}, storageErr("count subscriptions", err)
	}

	for _, f := range filters {
		if _, ok := f.(PageFilter); ok {
			db = f.Apply(db)
		}
	}

	var list []Subscription
	if err := db.Order("created_at desc").Find(&list).Error; err != nil {
		return SubscriptionList{}, storageErr("find subscriptions", err)
	}

	return SubscriptionList{
		Subscriptions: list,
		TotalCount:    cnt,
	}, nil
}

// Transaction runs fn against a store bound to one database transaction.
func (r *Repo) Transaction(ctx context.Context, fn func(Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

func whereTargets(db *gorm.DB, targets []Target) *gorm.DB {
	kinds := make([]TargetKind, 0, 2)
	ids := make(map[TargetKind][]uuid.UUID)
	for _, t := range targets {
		if _, ok := ids[t.Kind]; !ok {
			kinds = append(kinds, t.Kind)
		}
		ids[t.Kind] = append(ids[t.Kind], t.ID)
	}

	cond := db.Session(&gorm.Session{NewDB: true})
	for i, kind := range kinds {
		if i == 0 {
			cond = cond.Where("target_kind = ? and target_id in ?", kind, ids[kind])
			continue
		}
		cond = cond.Or("target_kind = ? and target_id in ?", kind, ids[kind])
	}

	return db.Where(cond)
}
