package events

import (
	"github.com/google/uuid"
)

const (
	SubjectExecutionRecorded  = "teams.execution.recorded"
	SubjectCaseCreated        = "teams.case.created"
	SubjectCaseOwnerChanged   = "teams.case.owner_changed"
	SubjectMaintainerAdded    = "teams.case.maintainer_added"
	SubjectMaintainerRemoved  = "teams.case.maintainer_removed"
	SubjectMaintainersCleared = "teams.case.maintainers_cleared"
	SubjectCaseDeleted        = "teams.case.deleted"
	SubjectMemberAdded        = "teams.suite.member_added"
	SubjectMemberRemoved      = "teams.suite.member_removed"
	SubjectSuiteSubscriptions = "teams.suite.subscriptions_cleared"
	SubjectSuiteDeleted       = "teams.suite.deleted"
)

type ExecutionPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
}

type CasePayload struct {
	CaseID uuid.UUID `json:"case_id"`
}

type OwnerChangedPayload struct {
	CaseID     uuid.UUID  `json:"case_id"`
	OldOwnerID *uuid.UUID `json:"old_owner_id"`
	NewOwnerID *uuid.UUID `json:"new_owner_id"`
}

type MaintainerPayload struct {
	CaseID uuid.UUID `json:"case_id"`
	UserID uuid.UUID `json:"user_id"`
}

type MaintainersClearedPayload struct {
	CaseID  uuid.UUID   `json:"case_id"`
	UserIDs []uuid.UUID `json:"user_ids"`
}

type MembershipPayload struct {
	SuiteID uuid.UUID   `json:"suite_id"`
	CaseIDs []uuid.UUID `json:"case_ids"`
}

type SuitePayload struct {
	SuiteID uuid.UUID `json:"suite_id"`
}
