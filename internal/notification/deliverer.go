package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/goverland-labs/teams-subscriptions/internal/user"
)

const SubjectDeliver = "teams.notifications.deliver"

type publisher interface {
	Publish(subj string, data []byte) error
}

type UserProvider interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type EmailPreferences interface {
	EmailEnabled(ctx context.Context, userID uuid.UUID) (bool, error)
}

// InboxDeliverer stores the message as an unread in-app notification.
type InboxDeliverer struct {
	repo *Repo
}

func NewInboxDeliverer(r *Repo) *InboxDeliverer {
	return &InboxDeliverer{repo: r}
}

func (d *InboxDeliverer) Deliver(ctx context.Context, recipient uuid.UUID, msg Message) error {
	return d.repo.Create(ctx, &Notification{
		ID:          uuid.New(),
		CreatedAt:   time.Now(),
		UserID:      recipient,
		EventKind:   msg.EventKind,
		TargetKind:  msg.Target.Kind,
		TargetID:    msg.Target.ID,
		ExecutionID: msg.ExecutionID,
		Title:       msg.Title,
		Body:        msg.Body,
	})
}

type OutgoingMessage struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	EventKind   string    `json:"event_kind"`
	TargetKind  string    `json:"target_kind"`
	TargetID    uuid.UUID `json:"target_id"`
	ExecutionID uuid.UUID `json:"execution_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Publisher hands the message to the mail service over NATS. Users who turned
// email off are skipped silently.
type Publisher struct {
	pub   publisher
	users UserProvider
	prefs EmailPreferences
}

func NewPublisher(p publisher, up UserProvider, ep EmailPreferences) *Publisher {
	return &Publisher{
		pub:   p,
		users: up,
		prefs: ep,
	}
}

func (p *Publisher) Deliver(ctx context.Context, recipient uuid.UUID, msg Message) error {
	enabled, err := p.prefs.EmailEnabled(ctx, recipient)
	if err != nil {
		return fmt.Errorf("get email preferences: %w", err)
	}
	if !enabled {
		return nil
	}

	u, err := p.users.GetByID(ctx, recipient)
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}

	data, err := json.Marshal(OutgoingMessage{
		RecipientID: recipient,
		Username:    u.Username,
		Email:       u.Email,
		EventKind:   string(msg.EventKind),
		TargetKind:  string(msg.Target.Kind),
		TargetID:    msg.Target.ID,
		ExecutionID: msg.ExecutionID,
		Title:       msg.Title,
		Body:        msg.Body,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := p.pub.Publish(SubjectDeliver, data); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectDeliver, err)
	}

	return nil
}

// Deliverers tries every channel and reports all channel failures together.
type Deliverers []Deliverer

func (list Deliverers) Deliver(ctx context.Context, recipient uuid.UUID, msg Message) error {
	var result *multierror.Error
	for _, d := range list {
		if err := d.Deliver(ctx, recipient, msg); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
