package subscription

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventTestExecutionFail EventKind = "TEST_EXECUTION_FAIL"
	EventTestRunCreated    EventKind = "TEST_RUN_CREATED"
)

// propagatedKinds are replayed from a suite onto its cases.
var propagatedKinds = map[EventKind]struct{}{
	EventTestExecutionFail: {},
}

func (k EventKind) Valid() bool {
	switch k {
	case EventTestExecutionFail, EventTestRunCreated:
		return true
	default:
		return false
	}
}

func (k EventKind) propagated() bool {
	_, ok := propagatedKinds[k]

	return ok
}

type TargetKind string

const (
	TargetKindTestCase  TargetKind = "testcase"
	TargetKindTestSuite TargetKind = "testsuite"
)

func (k TargetKind) Valid() bool {
	return k == TargetKindTestCase || k == TargetKindTestSuite
}

// IsCollection reports whether targets of this kind group member targets.
func (k TargetKind) IsCollection() bool {
	return k == TargetKindTestSuite
}

// Target is a tagged reference to any watchable entity.
type Target struct {
	Kind TargetKind
	ID   uuid.UUID
}

func CaseTarget(id uuid.UUID) Target {
	return Target{Kind: TargetKindTestCase, ID: id}
}

func SuiteTarget(id uuid.UUID) Target {
	return Target{Kind: TargetKindTestSuite, ID: id}
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

func caseTargets(ids []uuid.UUID) []Target {
	list := make([]Target, len(ids))
	for i, id := range ids {
		list[i] = CaseTarget(id)
	}

	return list
}

// Subscription holds one (user, event kind, target) rule. Derived rows for suite
// cases are materialized on write so fan-out reads never expand suites.
type Subscription struct {
	ID         uuid.UUID `gorm:"primary_key"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	UserID     uuid.UUID  `gorm:"uniqueIndex:idx_subscriptions_key,priority:1"`
	EventKind  EventKind  `gorm:"uniqueIndex:idx_subscriptions_key,priority:2"`
	TargetKind TargetKind `gorm:"uniqueIndex:idx_subscriptions_key,priority:3"`
	TargetID   uuid.UUID  `gorm:"uniqueIndex:idx_subscriptions_key,priority:4;index"`
	Active     bool
}

func (s *Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) Target() Target {
	return Target{Kind: s.TargetKind, ID: s.TargetID}
}

type SubscriptionList struct {
	Subscriptions []Subscription
	TotalCount    int64
}
