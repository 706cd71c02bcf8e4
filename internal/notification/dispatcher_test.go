package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/goverland-labs/teams-subscriptions/internal/catalog"
	"github.com/goverland-labs/teams-subscriptions/internal/subscription"
	"github.com/goverland-labs/teams-subscriptions/internal/user"
)

func failedExecution(caseID uuid.UUID, published bool) Execution {
	return Execution{
		ID:           uuid.New(),
		CaseID:       caseID,
		RunID:        uuid.New(),
		Result:       catalog.ResultFail,
		RunPublished: published,
		RunCreator:   uuid.New(),
	}
}

func TestUnitDispatchSkipsPassedExecution(t *testing.T) {
	subs := &fakeSubscribers{}
	d := newRecordingDeliverer()
	dispatcher := NewDispatcher(subs, fakeCases{}, d)

	e := failedExecution(uuid.New(), true)
	e.Result = catalog.ResultPass

	report, err := dispatcher.OnTestExecutionRecorded(context.Background(), e)
	require.NoError(t, err)
	require.Equal(t, StateSkipped, report.State)
	require.Empty(t, report.Recipients)
	require.Zero(t, subs.calls)
	require.Empty(t, d.delivered)
}

func TestUnitDispatchDeliversOncePerUser(t *testing.T) {
	author, watcher := uuid.New(), uuid.New()
	tc := &catalog.TestCase{ID: uuid.New(), Name: "checkout", AuthorID: &author}
	subs := &fakeSubscribers{users: map[subscription.Target][]uuid.UUID{
		subscription.CaseTarget(tc.ID): {watcher, author},
	}}
	d := newRecordingDeliverer()

	report, err := NewDispatcher(subs, fakeCases{tc.ID: tc}, d).
		OnTestExecutionRecorded(context.Background(), failedExecution(tc.ID, true))
	require.NoError(t, err)

	require.Equal(t, StateDelivered, report.State)
	require.Equal(t, []uuid.UUID{author, watcher}, report.Recipients)
	require.Equal(t, 2, report.Delivered)
	require.Equal(t, map[uuid.UUID]int{author: 1, watcher: 1}, d.delivered)

	msg := d.messages[0]
	require.Equal(t, subscription.EventTestExecutionFail, msg.EventKind)
	require.Equal(t, subscription.CaseTarget(tc.ID), msg.Target)
	require.Contains(t, msg.Title, "checkout")
}

func TestUnitDispatchUnpublishedRunNotifiesAuthorOnly(t *testing.T) {
	author, watcher := uuid.New(), uuid.New()
	tc := &catalog.TestCase{ID: uuid.New(), Name: "checkout", AuthorID: &author}
	subs := &fakeSubscribers{users: map[subscription.Target][]uuid.UUID{
		subscription.CaseTarget(tc.ID): {watcher},
	}}
	d := newRecordingDeliverer()

	report, err := NewDispatcher(subs, fakeCases{tc.ID: tc}, d).
		OnTestExecutionRecorded(context.Background(), failedExecution(tc.ID, false))
	require.NoError(t, err)

	require.Equal(t, []uuid.UUID{author}, report.Recipients)
	require.Equal(t, map[uuid.UUID]int{author: 1}, d.delivered)
	require.Zero(t, subs.calls)
}

func TestUnitDispatchWithoutAuthor(t *testing.T) {
	watcher := uuid.New()
	tc := &catalog.TestCase{ID: uuid.New(), Name: "checkout"}
	subs := &fakeSubscribers{users: map[subscription.Target][]uuid.UUID{
		subscription.CaseTarget(tc.ID): {watcher},
	}}
	dispatcher := NewDispatcher(subs, fakeCases{tc.ID: tc}, newRecordingDeliverer())

	report, err := dispatcher.OnTestExecutionRecorded(context.Background(), failedExecution(tc.ID, false))
	require.NoError(t, err)
	require.Equal(t, StateDelivered, report.State)
	require.Empty(t, report.Recipients)

	report, err = dispatcher.OnTestExecutionRecorded(context.Background(), failedExecution(tc.ID, true))
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{watcher}, report.Recipients)
}

func TestUnitDispatchIsolatesDeliveryFailures(t *testing.T) {
	author, broken, watcher := uuid.New(), uuid.New(), uuid.New()
	tc := &catalog.TestCase{ID: uuid.New(), Name: "checkout", AuthorID: &author}
	subs := &fakeSubscribers{users: map[subscription.Target][]uuid.UUID{
		subscription.CaseTarget(tc.ID): {broken, watcher},
	}}
	d := newRecordingDeliverer(broken)

	report, err := NewDispatcher(subs, fakeCases{tc.ID: tc}, d).
		OnTestExecutionRecorded(context.Background(), failedExecution(tc.ID, true))
	require.NoError(t, err)

	require.Equal(t, StateDelivered, report.State)
	require.Equal(t, 2, report.Delivered)
	require.Len(t, report.Failed, 1)
	require.Equal(t, broken, report.Failed[0].Recipient)
	require.ErrorIs(t, report.Failed[0], errDeliver)
	require.Equal(t, map[uuid.UUID]int{author: 1, watcher: 1}, d.delivered)
}

func TestUnitDispatchRecoversDeliveryPanic(t *testing.T) {
	author, broken, watcher := uuid.New(), uuid.New(), uuid.New()
	tc := &catalog.TestCase{ID: uuid.New(), Name: "checkout", AuthorID: &author}
	subs := &fakeSubscribers{users: map[subscription.Target][]uuid.UUID{
		subscription.CaseTarget(tc.ID): {broken, watcher},
	}}
	d := newRecordingDeliverer()
	d.panicFor[broken] = true

	report, err := NewDispatcher(subs, fakeCases{tc.ID: tc}, d).
		OnTestExecutionRecorded(context.Background(), failedExecution(tc.ID, true))
	require.NoError(t, err)

	require.Equal(t, StateDelivered, report.State)
	require.Equal(t, 2, report.Delivered)
	require.Len(t, report.Failed, 1)
	require.Equal(t, broken, report.Failed[0].Recipient)
	require.ErrorIs(t, report.Failed[0], ErrDeliveryPanic)
	require.Equal(t, map[uuid.UUID]int{author: 1, watcher: 1}, d.delivered)
}

func TestUnitDispatchResolveFailures(t *testing.T) {
	tc := &catalog.TestCase{ID: uuid.New(), Name: "checkout"}
	errStore := errors.New("connection refused")

	t.Run("missing case", func(t *testing.T) {
		d := newRecordingDeliverer()
		report, err := NewDispatcher(&fakeSubscribers{}, fakeCases{}, d).
			OnTestExecutionRecorded(context.Background(), failedExecution(tc.ID, true))
		require.Error(t, err)
		require.Equal(t, StateReceived, report.State)
		require.Empty(t, d.delivered)
	})

	t.Run("subscribers unavailable", func(t *testing.T) {
		d := newRecordingDeliverer()
		report, err := NewDispatcher(&fakeSubscribers{err: errStore}, fakeCases{tc.ID: tc}, d).
			OnTestExecutionRecorded(context.Background(), failedExecution(tc.ID, true))
		require.ErrorIs(t, err, errStore)
		require.Equal(t, StateReceived, report.State)
		require.Empty(t, d.delivered)
	})
}

func TestUnitDispatchRefiresOnRepeatedFail(t *testing.T) {
	author := uuid.New()
	tc := &catalog.TestCase{ID: uuid.New(), Name: "checkout", AuthorID: &author}
	d := newRecordingDeliverer()
	dispatcher := NewDispatcher(&fakeSubscribers{}, fakeCases{tc.ID: tc}, d)

	e := failedExecution(tc.ID, true)
	for i := 0; i < 2; i++ {
		_, err := dispatcher.OnTestExecutionRecorded(context.Background(), e)
		require.NoError(t, err)
	}

	require.Equal(t, 2, d.delivered[author])
}

func TestUnitDispatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	u1 := user.User{ID: uuid.New(), Username: "author", Email: "author@example.com"}
	u2 := user.User{ID: uuid.New(), Username: "watcher", Email: "watcher@example.com"}
	require.NoError(t, db.Create(&u1).Error)
	require.NoError(t, db.Create(&u2).Error)

	cr := catalog.NewRepo(db)
	subs := subscription.NewService(subscription.NewRepo(db), cr, user.NewRepo(db), map[subscription.TargetKind]subscription.Resolver{
		subscription.TargetKindTestCase:  cr.CaseExists,
		subscription.TargetKindTestSuite: cr.SuiteExists,
	})

	// member M authored by U1
	tc := catalog.TestCase{ID: uuid.New(), Name: "login works", AuthorID: &u1.ID}
	require.NoError(t, db.Create(&tc).Error)
	require.NoError(t, subs.OnMemberCreated(ctx, tc.ID))

	// collection C, M added to C
	suite := catalog.TestSuite{ID: uuid.New(), Name: "smoke"}
	require.NoError(t, db.Create(&suite).Error)
	require.NoError(t, db.Create(&catalog.Membership{TestSuiteID: suite.ID, TestCaseID: tc.ID}).Error)
	require.NoError(t, subs.OnMemberAdded(ctx, suite.ID, tc.ID))

	// U2 subscribes to C
	_, err := subs.Subscribe(ctx, u2.ID, subscription.EventTestExecutionFail, subscription.SuiteTarget(suite.ID))
	require.NoError(t, err)
	ok, err := subs.IsSubscribed(ctx, u2.ID, subscription.CaseTarget(tc.ID))
	require.NoError(t, err)
	require.True(t, ok)

	// FAIL on a published run
	run := catalog.TestRun{ID: uuid.New(), CreatedBy: u1.ID, Published: true}
	require.NoError(t, db.Create(&run).Error)
	execution := catalog.TestExecution{ID: uuid.New(), RunID: run.ID, TestCaseID: tc.ID, Result: catalog.ResultFail}
	require.NoError(t, db.Create(&execution).Error)

	recorded, err := cr.GetExecution(ctx, execution.ID)
	require.NoError(t, err)

	inbox := NewRepo(db)
	pub := &fakePublisher{}
	deliverers := Deliverers{
		NewInboxDeliverer(inbox),
		NewPublisher(pub, user.NewRepo(db), optOut{}),
	}

	report, err := NewDispatcher(subs, cr, deliverers).OnTestExecutionRecorded(ctx, ExecutionFromRecorded(*recorded))
	require.NoError(t, err)
	require.Equal(t, StateDelivered, report.State)
	require.ElementsMatch(t, []uuid.UUID{u1.ID, u2.ID}, report.Recipients)
	require.Equal(t, 2, report.Delivered)
	require.Empty(t, report.Failed)
	require.Len(t, pub.messages, 2)

	for _, id := range []uuid.UUID{u1.ID, u2.ID} {
		list, err := inbox.GetByFilters(ctx, []Filter{UserIDFilter{ID: id.String()}})
		require.NoError(t, err)
		require.EqualValues(t, 1, list.TotalCount)
		require.Equal(t, execution.ID, list.Notifications[0].ExecutionID)
		require.True(t, list.Notifications[0].Unread())
	}
}
