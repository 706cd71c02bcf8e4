package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/goverland-labs/teams-subscriptions/internal/catalog"
	"github.com/goverland-labs/teams-subscriptions/internal/subscription"
)

type State string

const (
	StateReceived           State = "RECEIVED"
	StateRecipientsResolved State = "RECIPIENTS_RESOLVED"
	StateDelivered          State = "DELIVERED"
	StateSkipped            State = "SKIPPED"
)

// Execution is the recorded test result the dispatcher reacts to.
type Execution struct {
	ID           uuid.UUID
	CaseID       uuid.UUID
	RunID        uuid.UUID
	Result       catalog.Result
	RunPublished bool
	RunCreator   uuid.UUID
}

func ExecutionFromRecorded(re catalog.RecordedExecution) Execution {
	return Execution{
		ID:           re.ID,
		CaseID:       re.CaseID,
		RunID:        re.RunID,
		Result:       re.Result,
		RunPublished: re.RunPublished,
		RunCreator:   re.RunCreator,
	}
}

type Message struct {
	EventKind   subscription.EventKind
	Target      subscription.Target
	ExecutionID uuid.UUID
	RunID       uuid.UUID
	Title       string
	Body        string
}

// Report describes how one execution event went through the dispatcher.
type Report struct {
	State      State
	Recipients []uuid.UUID
	Delivered  int
	Failed     []*DeliveryError
}

// Notification is an in-app inbox entry. Nil ReadAt means unread.
type Notification struct {
	ID          uuid.UUID `gorm:"primary_key"`
	CreatedAt   time.Time `gorm:"index"`
	UserID      uuid.UUID `gorm:"index"`
	EventKind   subscription.EventKind
	TargetKind  subscription.TargetKind
	TargetID    uuid.UUID
	ExecutionID uuid.UUID
	Title       string
	Body        string
	ReadAt      *time.Time
}

func (n *Notification) TableName() string {
	return "notifications"
}

func (n *Notification) Unread() bool {
	return n.ReadAt == nil
}

type NotificationList struct {
	Notifications []Notification
	TotalCount    int64
}
