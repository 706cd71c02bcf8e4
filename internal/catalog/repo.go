package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repo reads the catalog tables owned by the web tier.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&TestSuite{},
		&TestCase{},
		&Membership{},
		&Maintainer{},
		&TestRun{},
		&TestExecution{},
	)
}

func (r *Repo) MembersOf(ctx context.Context, suiteID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.
		WithContext(ctx).
		Model(&Membership{}).
		Where("test_suite_id = ?", suiteID).
		Pluck("test_case_id", &ids).
		Error
	if err != nil {
		return nil, fmt.Errorf("get members of suite #%s: %w", suiteID, err)
	}

	return ids, nil
}

func (r *Repo) CollectionsOf(ctx context.Context, caseID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.
		WithContext(ctx).
		Model(&Membership{}).
		Where("test_case_id = ?", caseID).
		Pluck("test_suite_id", &ids).
		Error
	if err != nil {
		return nil, fmt.Errorf("get suites of case #%s: %w", caseID, err)
	}

	return ids, nil
}

func (r *Repo) GetCase(ctx context.Context, id uuid.UUID) (*TestCase, error) {
	tc := TestCase{ID: id}
	if err := r.db.WithContext(ctx).Take(&tc).Error; err != nil {
		return nil, fmt.Errorf("get case by id #%s: %w", id, err)
	}

	return &tc, nil
}

// AuthorOf returns nil for a case without author.
func (r *Repo) AuthorOf(ctx context.Context, caseID uuid.UUID) (*uuid.UUID, error) {
	tc, err := r.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	return tc.AuthorID, nil
}

func (r *Repo) CaseExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, &TestCase{}, id)
}

func (r *Repo) SuiteExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, &TestSuite{}, id)
}

func (r *Repo) exists(ctx context.Context, model interface{}, id uuid.UUID) (bool, error) {
	var cnt int64
	err := r.db.
		WithContext(ctx).
		Model(model).
		Where("id = ?", id).
		Count(&cnt).
		Error
	if err != nil {
		return false, err
	}

	return cnt > 0, nil
}

func (r *Repo) GetExecution(ctx context.Context, id uuid.UUID) (*RecordedExecution, error) {
	var res RecordedExecution
	err := r.db.
		WithContext(ctx).
		Table("test_executions e").
		Select("e.id, e.test_case_id as case_id, e.run_id, e.result, r.published as run_published, r.created_by as run_creator").
		Joins("inner join test_runs r on r.id = e.run_id").
		Where("e.id = ?", id).
		Take(&res).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("get execution #%s: %w", id, err)
	}

	return &res, nil
}
