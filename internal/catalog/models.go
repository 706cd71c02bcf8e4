package catalog

import (
	"time"

	"github.com/google/uuid"
)

type Result string

const (
	ResultPass Result = "PASS"
	ResultFail Result = "FAIL"
)

type TestSuite struct {
	ID        uuid.UUID `gorm:"primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string
	Content   string
	AuthorID  *uuid.UUID
}

func (s *TestSuite) TableName() string {
	return "test_suites"
}

type TestCase struct {
	ID        uuid.UUID `gorm:"primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string
	Content   string
	AuthorID  *uuid.UUID
}

func (c *TestCase) TableName() string {
	return "test_cases"
}

// Membership is one suite <-> case link. A case may belong to any number of suites.
type Membership struct {
	TestSuiteID uuid.UUID `gorm:"primaryKey"`
	TestCaseID  uuid.UUID `gorm:"primaryKey;index"`
	CreatedAt   time.Time
}

func (m *Membership) TableName() string {
	return "test_case_suites"
}

type Maintainer struct {
	TestCaseID uuid.UUID `gorm:"primaryKey"`
	UserID     uuid.UUID `gorm:"primaryKey"`
	CreatedAt  time.Time
}

func (m *Maintainer) TableName() string {
	return "test_case_maintainers"
}

type TestRun struct {
	ID        uuid.UUID `gorm:"primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Date      time.Time
	CreatedBy uuid.UUID
	Published bool
}

func (r *TestRun) TableName() string {
	return "test_runs"
}

type TestExecution struct {
	ID         uuid.UUID `gorm:"primary_key"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	RunID      uuid.UUID `gorm:"uniqueIndex:idx_test_executions_run_case,priority:1"`
	TestCaseID uuid.UUID `gorm:"uniqueIndex:idx_test_executions_run_case,priority:2"`
	Result     Result
	Notes      string
	Duration   *time.Duration
}

func (e *TestExecution) TableName() string {
	return "test_executions"
}

// RecordedExecution is an execution joined with its run.
type RecordedExecution struct {
	ID           uuid.UUID
	CaseID       uuid.UUID
	RunID        uuid.UUID
	Result       Result
	RunPublished bool
	RunCreator   uuid.UUID
}
