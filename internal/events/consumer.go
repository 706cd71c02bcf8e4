package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/goverland-labs/teams-subscriptions/internal/catalog"
	"github.com/goverland-labs/teams-subscriptions/internal/config"
	"github.com/goverland-labs/teams-subscriptions/internal/metrics"
	"github.com/goverland-labs/teams-subscriptions/internal/notification"
)

const (
	groupName  = "hooks"
	streamName = "TEAMS_HOOKS"

	maxPendingAckPerConsumer = 10
)

// ErrMalformedPayload marks events that can never be processed. They are acked and dropped.
var ErrMalformedPayload = errors.New("malformed payload")

// Hooks are the relationship change calls of the subscription core.
type Hooks interface {
	OnMemberCreated(ctx context.Context, caseID uuid.UUID) error
	OnOwnerChanged(ctx context.Context, caseID uuid.UUID, oldOwner, newOwner *uuid.UUID) error
	OnMaintainerAdded(ctx context.Context, caseID, userID uuid.UUID) error
	OnMaintainerRemoved(ctx context.Context, caseID, userID uuid.UUID) error
	OnMaintainersCleared(ctx context.Context, caseID uuid.UUID, users []uuid.UUID) error
	OnCaseDeleted(ctx context.Context, caseID uuid.UUID) error
	OnMembersAdded(ctx context.Context, suiteID uuid.UUID, caseIDs []uuid.UUID) error
	OnMemberRemoved(ctx context.Context, suiteID, caseID uuid.UUID) error
	OnCollectionSubscriptionCleared(ctx context.Context, suiteID uuid.UUID) error
	OnSuiteDeleted(ctx context.Context, suiteID uuid.UUID) error
}

type ExecutionReader interface {
	GetExecution(ctx context.Context, id uuid.UUID) (*catalog.RecordedExecution, error)
}

type ExecutionDispatcher interface {
	OnTestExecutionRecorded(ctx context.Context, e notification.Execution) (notification.Report, error)
}

type handlerFunc func(ctx context.Context, data []byte) error

type closable interface {
	Unsubscribe() error
}

type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
}

// Consumer turns committed entity mutations published by the web tier into hook calls.
type Consumer struct {
	conn       *nats.Conn
	hooks      Hooks
	executions ExecutionReader
	dispatcher ExecutionDispatcher
	consumers  []closable
}

func NewConsumer(nc *nats.Conn, h Hooks, er ExecutionReader, d ExecutionDispatcher) *Consumer {
	return &Consumer{
		conn:       nc,
		hooks:      h,
		executions: er,
		dispatcher: d,
		consumers:  make([]closable, 0),
	}
}

func (c *Consumer) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		SubjectExecutionRecorded:  c.executionRecorded,
		SubjectCaseCreated:        c.caseCreated,
		SubjectCaseOwnerChanged:   c.ownerChanged,
		SubjectMaintainerAdded:    c.maintainerAdded,
		SubjectMaintainerRemoved:  c.maintainerRemoved,
		SubjectMaintainersCleared: c.maintainersCleared,
		SubjectCaseDeleted:        c.caseDeleted,
		SubjectMemberAdded:        c.memberAdded,
		SubjectMemberRemoved:      c.memberRemoved,
		SubjectSuiteSubscriptions: c.suiteSubscriptionsCleared,
		SubjectSuiteDeleted:       c.suiteDeleted,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	js, err := c.conn.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	handlers := c.handlers()
	if err := ensureStream(js, handlers); err != nil {
		return err
	}

	group := config.GenerateGroupName(groupName)
	for subject, h := range handlers {
		durable := durableName(group, subject)
		if err := ensureConsumer(js, group, subject, durable); err != nil {
			_ = c.stop()

			return err
		}

		// bound subscriptions keep the durable consumer on unsubscribe
		sub, err := js.QueueSubscribe(subject, group, c.wrap(ctx, subject, h),
			nats.Bind(streamName, durable),
			nats.ManualAck(),
		)
		if err != nil {
			_ = c.stop()

			return fmt.Errorf("consume for %s/%s: %w", group, subject, err)
		}

		c.consumers = append(c.consumers, sub)
	}

	log.Info().Int("subjects", len(c.consumers)).Msg("hook consumers are started")

	<-ctx.Done()
	return c.stop()
}

func ensureStream(js nats.JetStreamManager, handlers map[string]handlerFunc) error {
	_, err := js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", streamName, err)
	}

	subjects := make([]string, 0, len(handlers))
	for subject := range handlers {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	if _, err := js.AddStream(&nats.StreamConfig{Name: streamName, Subjects: subjects}); err != nil {
		return fmt.Errorf("add stream %s: %w", streamName, err)
	}

	return nil
}

func ensureConsumer(js nats.JetStreamManager, group, subject, durable string) error {
	_, err := js.ConsumerInfo(streamName, durable)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("consumer info %s: %w", durable, err)
	}

	_, err = js.AddConsumer(streamName, &nats.ConsumerConfig{
		Durable:        durable,
		DeliverSubject: "deliver." + durable,
		DeliverGroup:   group,
		FilterSubject:  subject,
		AckPolicy:      nats.AckExplicitPolicy,
		MaxAckPending:  maxPendingAckPerConsumer,
	})
	if err != nil {
		return fmt.Errorf("add consumer %s: %w", durable, err)
	}

	return nil
}

// durable names must not contain dots
func durableName(group, subject string) string {
	return group + "_" + strings.ReplaceAll(subject, ".", "_")
}

func (c *Consumer) wrap(ctx context.Context, subject string, h handlerFunc) nats.MsgHandler {
	return func(msg *nats.Msg) {
		c.process(ctx, subject, h, msg.Data, msg)
	}
}

// process acks handled and malformed events and naks the rest for redelivery.
func (c *Consumer) process(ctx context.Context, subject string, h handlerFunc, data []byte, a acker) {
	err := h(ctx, data)
	metrics.CollectEvent(subject, err)

	switch {
	case err == nil:
		if ackErr := a.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Str("subject", subject).Msg("ack event")
		}
	case errors.Is(err, ErrMalformedPayload):
		log.Warn().Err(err).Str("subject", subject).Msg("drop event")
		if ackErr := a.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Str("subject", subject).Msg("ack event")
		}
	default:
		log.Error().Err(err).Str("subject", subject).Msg("process event")
		if nakErr := a.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Str("subject", subject).Msg("nak event")
		}
	}
}

func (c *Consumer) stop() error {
	for _, cs := range c.consumers {
		if err := cs.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("close hook consumer")
		}
	}

	return nil
}

func (c *Consumer) executionRecorded(ctx context.Context, data []byte) error {
	var payload ExecutionPayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	re, err := c.executions.GetExecution(ctx, payload.ExecutionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().Str("execution", payload.ExecutionID.String()).Msg("execution is not found")

		return nil
	}
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}

	_, err = c.dispatcher.OnTestExecutionRecorded(ctx, notification.ExecutionFromRecorded(*re))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().Str("execution", payload.ExecutionID.String()).Msg("case of execution is not found")

		return nil
	}
	if err != nil {
		return fmt.Errorf("dispatch execution %s: %w", payload.ExecutionID, err)
	}

	return nil
}

func (c *Consumer) caseCreated(ctx context.Context, data []byte) error {
	var payload CasePayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	return c.hooks.OnMemberCreated(ctx, payload.CaseID)
}

func (c *Consumer) ownerChanged(ctx context.Context, data []byte) error {
	var payload OwnerChangedPayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	return c.hooks.OnOwnerChanged(ctx, payload.CaseID, payload.OldOwnerID, payload.NewOwnerID)
}

func (c *Consumer) maintainerAdded(ctx context.Context, data []byte) error {
	var payload MaintainerPayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	return c.hooks.OnMaintainerAdded(ctx, payload.CaseID, payload.UserID)
}

func (c *Consumer) maintainerRemoved(ctx context.Context, data []byte) error {
	var payload MaintainerPayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	return c.hooks.OnMaintainerRemoved(ctx, payload.CaseID, payload.UserID)
}

func (c *Consumer) maintainersCleared(ctx context.Context, data []byte) error {
	var payload MaintainersClearedPayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	return c.hooks.OnMaintainersCleared(ctx, payload.CaseID, payload.UserIDs)
}

func (c *Consumer) caseDeleted(ctx context.Context, data []byte) error {
	var payload CasePayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	return c.hooks.OnCaseDeleted(ctx, payload.CaseID)
}

func (c *Consumer) memberAdded(ctx context.Context, data []byte) error {
	var payload MembershipPayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	return c.hooks.OnMembersAdded(ctx, payload.SuiteID, payload.CaseIDs)
}

func (c *Consumer) memberRemoved(ctx context.Context, data []byte) error {
	var payload MembershipPayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	for _, caseID := range payload.CaseIDs {
		if err := c.hooks.OnMemberRemoved(ctx, payload.SuiteID, caseID); err != nil {
			return err
		}
	}

	return nil
}

func (c *Consumer) suiteSubscriptionsCleared(ctx context.Context, data []byte) error {
	var payload SuitePayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	return c.hooks.OnCollectionSubscriptionCleared(ctx, payload.SuiteID)
}

func (c *Consumer) suiteDeleted(ctx context.Context, data []byte) error {
	var payload SuitePayload
	if err := decode(data, &payload); err != nil {
		return err
	}

	return c.hooks.OnSuiteDeleted(ctx, payload.SuiteID)
}

func decode(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}

	return nil
}
