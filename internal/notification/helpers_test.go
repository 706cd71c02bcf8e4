package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/goverland-labs/teams-subscriptions/internal/catalog"
	"github.com/goverland-labs/teams-subscriptions/internal/subscription"
	"github.com/goverland-labs/teams-subscriptions/internal/user"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, migrate := range []func(*gorm.DB) error{
		user.Migrate,
		catalog.Migrate,
		subscription.Migrate,
		Migrate,
	} {
		require.NoError(t, migrate(db))
	}

	return db
}

type fakeSubscribers struct {
	users map[subscription.Target][]uuid.UUID
	err   error
	calls int
}

func (f *fakeSubscribers) ActiveSubscribers(_ context.Context, _ subscription.EventKind, target subscription.Target) ([]uuid.UUID, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	return f.users[target], nil
}

type fakeCases map[uuid.UUID]*catalog.TestCase

func (f fakeCases) GetCase(_ context.Context, id uuid.UUID) (*catalog.TestCase, error) {
	tc, ok := f[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}

	return tc, nil
}

var errDeliver = errors.New("smtp is down")

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered map[uuid.UUID]int
	messages  []Message
	failFor   map[uuid.UUID]bool
	panicFor  map[uuid.UUID]bool
}

func newRecordingDeliverer(failFor ...uuid.UUID) *recordingDeliverer {
	d := &recordingDeliverer{
		delivered: make(map[uuid.UUID]int),
		failFor:   make(map[uuid.UUID]bool),
		panicFor:  make(map[uuid.UUID]bool),
	}
	for _, id := range failFor {
		d.failFor[id] = true
	}

	return d
}

func (d *recordingDeliverer) Deliver(_ context.Context, recipient uuid.UUID, msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failFor[recipient] {
		return errDeliver
	}
	if d.panicFor[recipient] {
		panic("template is nil")
	}
	d.delivered[recipient]++
	d.messages = append(d.messages, msg)

	return nil
}

type publishedMessage struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *fakePublisher) Publish(subj string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{subject: subj, data: data})

	return nil
}

type fakeUsers map[uuid.UUID]*user.User

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}

	return u, nil
}

// optOut disables every channel for the listed users.
type optOut map[uuid.UUID]bool

func (o optOut) EmailEnabled(_ context.Context, userID uuid.UUID) (bool, error) {
	return !o[userID], nil
}

func (o optOut) DigestEnabled(_ context.Context, userID uuid.UUID) (bool, error) {
	return !o[userID], nil
}
