package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/goverland-labs/teams-subscriptions/internal/catalog"
	"github.com/goverland-labs/teams-subscriptions/internal/metrics"
	"github.com/goverland-labs/teams-subscriptions/internal/subscription"
)

type SubscriberProvider interface {
	ActiveSubscribers(ctx context.Context, kind subscription.EventKind, target subscription.Target) ([]uuid.UUID, error)
}

type CaseProvider interface {
	GetCase(ctx context.Context, id uuid.UUID) (*catalog.TestCase, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, recipient uuid.UUID, msg Message) error
}

// Dispatcher resolves the recipients of a failed execution and delivers to each
// of them once.
type Dispatcher struct {
	subscribers SubscriberProvider
	cases       CaseProvider
	deliverer   Deliverer
}

func NewDispatcher(sp SubscriberProvider, cp CaseProvider, d Deliverer) *Dispatcher {
	return &Dispatcher{
		subscribers: sp,
		cases:       cp,
		deliverer:   d,
	}
}

// OnTestExecutionRecorded fires on every FAIL, whether the execution was just
// created or updated from an earlier FAIL.
// TODO: switch to transition-only firing (previous result != FAIL) once the
// recorded event carries the previous result.
func (d *Dispatcher) OnTestExecutionRecorded(ctx context.Context, e Execution) (report Report, err error) {
	report.State = StateReceived
	defer func(start time.Time) {
		metrics.CollectDispatchMetric(string(report.State), err, start)
	}(time.Now())

	if e.Result != catalog.ResultFail {
		report.State = StateSkipped

		return report, nil
	}

	tc, err := d.cases.GetCase(ctx, e.CaseID)
	if err != nil {
		return report, fmt.Errorf("get case: %w", err)
	}

	recipients, err := d.resolve(ctx, tc, e)
	if err != nil {
		return report, err
	}
	report.State = StateRecipientsResolved
	report.Recipients = recipients

	msg := failureMessage(tc, e)
	for _, recipient := range recipients {
		errD := d.deliver(ctx, recipient, msg)
		metrics.CollectDelivery(errD)
		if errD != nil {
			log.Error().
				Err(errD).
				Str("recipient", recipient.String()).
				Str("execution", e.ID.String()).
				Msg("deliver notification")

			report.Failed = append(report.Failed, &DeliveryError{Recipient: recipient, Err: errD})
			continue
		}

		report.Delivered++
	}
	report.State = StateDelivered

	log.Info().
		Str("execution", e.ID.String()).
		Str("case", e.CaseID.String()).
		Int("recipients", len(recipients)).
		Int("failed", len(report.Failed)).
		Msg("execution failure dispatched")

	return report, nil
}

// deliver turns a panicking deliverer into an error for this recipient only.
func (d *Dispatcher) deliver(ctx context.Context, recipient uuid.UUID, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDeliveryPanic, r)
		}
	}()

	return d.deliverer.Deliver(ctx, recipient, msg)
}

// resolve returns the author first, then active case subscribers when the run is
// published. Every user appears once.
func (d *Dispatcher) resolve(ctx context.Context, tc *catalog.TestCase, e Execution) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	list := make([]uuid.UUID, 0)
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		list = append(list, id)
	}

	if tc.AuthorID != nil {
		add(*tc.AuthorID)
	}

	if !e.RunPublished {
		return list, nil
	}

	subscribers, err := d.subscribers.ActiveSubscribers(ctx, subscription.EventTestExecutionFail, subscription.CaseTarget(e.CaseID))
	if err != nil {
		return nil, fmt.Errorf("get case subscribers: %w", err)
	}

	for _, id := range subscribers {
		add(id)
	}

	return list, nil
}

func failureMessage(tc *catalog.TestCase, e Execution) Message {
	return Message{
		EventKind:   subscription.EventTestExecutionFail,
		Target:      subscription.CaseTarget(tc.ID),
		ExecutionID: e.ID,
		RunID:       e.RunID,
		Title:       fmt.Sprintf("Test case %q failed", tc.Name),
		Body:        fmt.Sprintf("Test case %q failed in test run %s.", tc.Name, e.RunID),
	}
}
