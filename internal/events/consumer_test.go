package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/goverland-labs/teams-subscriptions/internal/catalog"
	"github.com/goverland-labs/teams-subscriptions/internal/notification"
)

type fakeHooks struct {
	calls []string
	err   error
}

func (h *fakeHooks) record(format string, args ...any) error {
	h.calls = append(h.calls, fmt.Sprintf(format, args...))

	return h.err
}

func (h *fakeHooks) OnMemberCreated(_ context.Context, caseID uuid.UUID) error {
	return h.record("created %s", caseID)
}

func (h *fakeHooks) OnOwnerChanged(_ context.Context, caseID uuid.UUID, oldOwner, newOwner *uuid.UUID) error {
	return h.record("owner %s %v %v", caseID, oldOwner != nil, newOwner != nil)
}

func (h *fakeHooks) OnMaintainerAdded(_ context.Context, caseID, userID uuid.UUID) error {
	return h.record("maintainer+ %s %s", caseID, userID)
}

func (h *fakeHooks) OnMaintainerRemoved(_ context.Context, caseID, userID uuid.UUID) error {
	return h.record("maintainer- %s %s", caseID, userID)
}

func (h *fakeHooks) OnMaintainersCleared(_ context.Context, caseID uuid.UUID, users []uuid.UUID) error {
	return h.record("maintainers cleared %s %d", caseID, len(users))
}

func (h *fakeHooks) OnCaseDeleted(_ context.Context, caseID uuid.UUID) error {
	return h.record("case deleted %s", caseID)
}

func (h *fakeHooks) OnMembersAdded(_ context.Context, suiteID uuid.UUID, caseIDs []uuid.UUID) error {
	return h.record("members+ %s %d", suiteID, len(caseIDs))
}

func (h *fakeHooks) OnMemberRemoved(_ context.Context, suiteID, caseID uuid.UUID) error {
	return h.record("member- %s %s", suiteID, caseID)
}

func (h *fakeHooks) OnCollectionSubscriptionCleared(_ context.Context, suiteID uuid.UUID) error {
	return h.record("suite cleared %s", suiteID)
}

func (h *fakeHooks) OnSuiteDeleted(_ context.Context, suiteID uuid.UUID) error {
	return h.record("suite deleted %s", suiteID)
}

type fakeExecutions map[uuid.UUID]*catalog.RecordedExecution

func (f fakeExecutions) GetExecution(_ context.Context, id uuid.UUID) (*catalog.RecordedExecution, error) {
	re, ok := f[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}

	return re, nil
}

type fakeDispatcher struct {
	executions []notification.Execution
	err        error
}

func (d *fakeDispatcher) OnTestExecutionRecorded(_ context.Context, e notification.Execution) (notification.Report, error) {
	d.executions = append(d.executions, e)

	return notification.Report{State: notification.StateDelivered}, d.err
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return data
}

func TestUnitHookHandlers(t *testing.T) {
	caseID, suiteID, userID := uuid.New(), uuid.New(), uuid.New()
	c1, c2 := uuid.New(), uuid.New()

	for name, tc := range map[string]struct {
		subject string
		payload any
		calls   []string
	}{
		"case created": {
			subject: SubjectCaseCreated,
			payload: CasePayload{CaseID: caseID},
			calls:   []string{fmt.Sprintf("created %s", caseID)},
		},
		"owner changed": {
			subject: SubjectCaseOwnerChanged,
			payload: OwnerChangedPayload{CaseID: caseID, NewOwnerID: &userID},
			calls:   []string{fmt.Sprintf("owner %s false true", caseID)},
		},
		"maintainer added": {
			subject: SubjectMaintainerAdded,
			payload: MaintainerPayload{CaseID: caseID, UserID: userID},
			calls:   []string{fmt.Sprintf("maintainer+ %s %s", caseID, userID)},
		},
		"maintainer removed": {
			subject: SubjectMaintainerRemoved,
			payload: MaintainerPayload{CaseID: caseID, UserID: userID},
			calls:   []string{fmt.Sprintf("maintainer- %s %s", caseID, userID)},
		},
		"maintainers cleared": {
			subject: SubjectMaintainersCleared,
			payload: MaintainersClearedPayload{CaseID: caseID, UserIDs: []uuid.UUID{userID, uuid.New()}},
			calls:   []string{fmt.Sprintf("maintainers cleared %s 2", caseID)},
		},
		"case deleted": {
			subject: SubjectCaseDeleted,
			payload: CasePayload{CaseID: caseID},
			calls:   []string{fmt.Sprintf("case deleted %s", caseID)},
		},
		"members added as one batch": {
			subject: SubjectMemberAdded,
			payload: MembershipPayload{SuiteID: suiteID, CaseIDs: []uuid.UUID{c1, c2}},
			calls:   []string{fmt.Sprintf("members+ %s 2", suiteID)},
		},
		"members removed one by one": {
			subject: SubjectMemberRemoved,
			payload: MembershipPayload{SuiteID: suiteID, CaseIDs: []uuid.UUID{c1, c2}},
			calls: []string{
				fmt.Sprintf("member- %s %s", suiteID, c1),
				fmt.Sprintf("member- %s %s", suiteID, c2),
			},
		},
		"suite subscriptions cleared": {
			subject: SubjectSuiteSubscriptions,
			payload: SuitePayload{SuiteID: suiteID},
			calls:   []string{fmt.Sprintf("suite cleared %s", suiteID)},
		},
		"suite deleted": {
			subject: SubjectSuiteDeleted,
			payload: SuitePayload{SuiteID: suiteID},
			calls:   []string{fmt.Sprintf("suite deleted %s", suiteID)},
		},
	} {
		t.Run(name, func(t *testing.T) {
			hooks := &fakeHooks{}
			c := NewConsumer(nil, hooks, fakeExecutions{}, &fakeDispatcher{})

			h, ok := c.handlers()[tc.subject]
			require.True(t, ok)
			require.NoError(t, h(context.Background(), mustJSON(t, tc.payload)))
			require.Equal(t, tc.calls, hooks.calls)
		})
	}
}

func TestUnitHookHandlerErrors(t *testing.T) {
	errHook := errors.New("tx aborted")
	hooks := &fakeHooks{err: errHook}
	c := NewConsumer(nil, hooks, fakeExecutions{}, &fakeDispatcher{})

	err := c.memberRemoved(context.Background(), mustJSON(t, MembershipPayload{SuiteID: uuid.New(), CaseIDs: []uuid.UUID{uuid.New(), uuid.New()}}))
	require.ErrorIs(t, err, errHook)
	require.Len(t, hooks.calls, 1)

	require.ErrorIs(t, c.caseCreated(context.Background(), []byte("{")), ErrMalformedPayload)
}

func TestUnitExecutionRecorded(t *testing.T) {
	re := &catalog.RecordedExecution{
		ID:           uuid.New(),
		CaseID:       uuid.New(),
		RunID:        uuid.New(),
		Result:       catalog.ResultFail,
		RunPublished: true,
		RunCreator:   uuid.New(),
	}

	t.Run("dispatched", func(t *testing.T) {
		d := &fakeDispatcher{}
		c := NewConsumer(nil, &fakeHooks{}, fakeExecutions{re.ID: re}, d)

		require.NoError(t, c.executionRecorded(context.Background(), mustJSON(t, ExecutionPayload{ExecutionID: re.ID})))
		require.Equal(t, []notification.Execution{notification.ExecutionFromRecorded(*re)}, d.executions)
	})

	t.Run("missing execution is dropped", func(t *testing.T) {
		d := &fakeDispatcher{}
		c := NewConsumer(nil, &fakeHooks{}, fakeExecutions{}, d)

		require.NoError(t, c.executionRecorded(context.Background(), mustJSON(t, ExecutionPayload{ExecutionID: uuid.New()})))
		require.Empty(t, d.executions)
	})

	t.Run("missing case is dropped", func(t *testing.T) {
		c := NewConsumer(nil, &fakeHooks{}, fakeExecutions{re.ID: re}, &fakeDispatcher{err: fmt.Errorf("get case: %w", gorm.ErrRecordNotFound)})

		require.NoError(t, c.executionRecorded(context.Background(), mustJSON(t, ExecutionPayload{ExecutionID: re.ID})))
	})

	t.Run("dispatch failure", func(t *testing.T) {
		errDispatch := errors.New("subscribers unavailable")
		c := NewConsumer(nil, &fakeHooks{}, fakeExecutions{re.ID: re}, &fakeDispatcher{err: errDispatch})

		err := c.executionRecorded(context.Background(), mustJSON(t, ExecutionPayload{ExecutionID: re.ID}))
		require.ErrorIs(t, err, errDispatch)
	})
}

type fakeAcker struct {
	acks int
	naks int
}

func (a *fakeAcker) Ack(...nats.AckOpt) error {
	a.acks++

	return nil
}

func (a *fakeAcker) Nak(...nats.AckOpt) error {
	a.naks++

	return nil
}

func TestUnitProcessAcksOrRedelivers(t *testing.T) {
	members := mustJSON(t, MembershipPayload{SuiteID: uuid.New(), CaseIDs: []uuid.UUID{uuid.New()}})
	execution := mustJSON(t, ExecutionPayload{ExecutionID: uuid.New()})

	for name, tc := range map[string]struct {
		subject string
		hookErr error
		data    []byte
		acks    int
		naks    int
	}{
		"handled event is acked": {
			subject: SubjectMemberAdded,
			data:    members,
			acks:    1,
		},
		"hook failure is redelivered": {
			subject: SubjectMemberAdded,
			hookErr: errors.New("connection reset"),
			data:    members,
			naks:    1,
		},
		"malformed payload is dropped": {
			subject: SubjectMemberAdded,
			hookErr: errors.New("connection reset"),
			data:    []byte("{"),
			acks:    1,
		},
		"missing execution is dropped": {
			subject: SubjectExecutionRecorded,
			data:    execution,
			acks:    1,
		},
	} {
		t.Run(name, func(t *testing.T) {
			hooks := &fakeHooks{err: tc.hookErr}
			c := NewConsumer(nil, hooks, fakeExecutions{}, &fakeDispatcher{})
			a := &fakeAcker{}

			c.process(context.Background(), tc.subject, c.handlers()[tc.subject], tc.data, a)
			require.Equal(t, tc.acks, a.acks)
			require.Equal(t, tc.naks, a.naks)
		})
	}
}

func TestUnitDurableName(t *testing.T) {
	require.Equal(t, "teams-subscriptions_hooks_teams_suite_member_added", durableName("teams-subscriptions_hooks", SubjectMemberAdded))
}
