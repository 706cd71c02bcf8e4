package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TargetCount struct {
	TargetID uuid.UUID `json:"target_id"`
	Name     string    `json:"name"`
	Count    int64     `json:"count"`
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Notification{})
}

func (r *Repo) Create(ctx context.Context, item *Notification) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repo) GetByFilters(ctx context.Context, filters []Filter) (NotificationList, error) {
	db := r.db.WithContext(ctx).Model(&Notification{})
	for _, f := range filters {
		if _, ok := f.(PageFilter); ok {
			continue
		}
		db = f.Apply(db)
	}

	var cnt int64
	if err := db.Count(&cnt).Error; err != nil {
		return NotificationList{}, err
	}

	for _, f := range filters {
		if _, ok := f.(PageFilter); ok {
			db = f.Apply(db)
		}
	}

	var list []Notification
	if err := db.Order("created_at desc").Find(&list).Error; err != nil {
		return NotificationList{}, err
	}

	return NotificationList{
		Notifications: list,
		TotalCount:    cnt,
	}, nil
}

// MarkRead returns gorm.ErrRecordNotFound when the user has no such unread entry.
func (r *Repo) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	res := r.db.
		WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? and user_id = ? and read_at is null", id, userID).
		Update("read_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *Repo) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.
		WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? and read_at is null", userID).
		Update("read_at", at)

	return res.RowsAffected, res.Error
}

func (r *Repo) Delete(ctx context.Context, userID uuid.UUID, ids ...uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.
		WithContext(ctx).
		Where("user_id = ? and id in ?", userID, ids).
		Delete(&Notification{})

	return res.RowsAffected, res.Error
}

// UsersWithUnreadSince returns users having unread entries created after since.
func (r *Repo) UsersWithUnreadSince(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	var users []uuid.UUID
	err := r.db.
		WithContext(ctx).
		Model(&Notification{}).
		Where("read_at is null and created_at >= ?", since).
		Distinct("user_id").
		Pluck("user_id", &users).
		Error

	return users, err
}

func (r *Repo) CountUnreadSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var cnt int64
	err := r.db.
		WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? and read_at is null and created_at >= ?", userID, since).
		Count(&cnt).
		Error

	return cnt, err
}

// TopTargetsSince groups the unread entries of the user by target, most frequent first.
func (r *Repo) TopTargetsSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]TargetCount, error) {
	query := `
select
    n.target_id,
    coalesce(c.name, '') as name,
    count(*) as count
from notifications n
left join test_cases c on c.id = n.target_id
where n.user_id = ?
    and n.read_at is null
    and n.created_at >= ?
group by n.target_id, c.name
order by count desc, name
limit ?`

	var list []TargetCount
	if err := r.db.WithContext(ctx).Raw(query, userID, since, limit).Scan(&list).Error; err != nil {
		return nil, err
	}

	return list, nil
}
