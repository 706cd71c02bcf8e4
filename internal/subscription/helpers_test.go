package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/goverland-labs/teams-subscriptions/internal/catalog"
	"github.com/goverland-labs/teams-subscriptions/internal/user"
)

type fixture struct {
	db      *gorm.DB
	repo    *Repo
	catalog *catalog.Repo
	service *Service
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, user.Migrate(db))
	require.NoError(t, catalog.Migrate(db))
	require.NoError(t, Migrate(db))

	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	repo := NewRepo(db)
	cr := catalog.NewRepo(db)
	svc := NewService(repo, cr, user.NewRepo(db), map[TargetKind]Resolver{
		TargetKindTestCase:  cr.CaseExists,
		TargetKindTestSuite: cr.SuiteExists,
	})

	return &fixture{
		db:      db,
		repo:    repo,
		catalog: cr,
		service: svc,
	}
}

func (f *fixture) createUser(t *testing.T) uuid.UUID {
	t.Helper()

	u := user.User{ID: uuid.New(), Username: "tester"}
	require.NoError(t, f.db.Create(&u).Error)

	return u.ID
}

func (f *fixture) createCase(t *testing.T, author *uuid.UUID) uuid.UUID {
	t.Helper()

	tc := catalog.TestCase{ID: uuid.New(), Name: "login works", AuthorID: author}
	require.NoError(t, f.db.Create(&tc).Error)

	return tc.ID
}

func (f *fixture) createSuite(t *testing.T) uuid.UUID {
	t.Helper()

	ts := catalog.TestSuite{ID: uuid.New(), Name: "smoke"}
	require.NoError(t, f.db.Create(&ts).Error)

	return ts.ID
}

// addMember links the case to the suite and notifies the tracker, as the web tier does.
func (f *fixture) addMember(t *testing.T, suiteID, caseID uuid.UUID) {
	t.Helper()

	require.NoError(t, f.db.Create(&catalog.Membership{TestSuiteID: suiteID, TestCaseID: caseID}).Error)
	require.NoError(t, f.service.OnMemberAdded(context.Background(), suiteID, caseID))
}

func (f *fixture) removeMember(t *testing.T, suiteID, caseID uuid.UUID) {
	t.Helper()

	require.NoError(t, f.db.Where("test_suite_id = ? and test_case_id = ?", suiteID, caseID).Delete(&catalog.Membership{}).Error)
	require.NoError(t, f.service.OnMemberRemoved(context.Background(), suiteID, caseID))
}

func (f *fixture) countRows(t *testing.T) int64 {
	t.Helper()

	var cnt int64
	require.NoError(t, f.db.Model(&Subscription{}).Count(&cnt).Error)

	return cnt
}

func (f *fixture) isSubscribed(t *testing.T, userID uuid.UUID, target Target) bool {
	t.Helper()

	ok, err := f.service.IsSubscribed(context.Background(), userID, target)
	require.NoError(t, err)

	return ok
}

func sameInstant(t *testing.T, expected, actual time.Time) {
	t.Helper()

	require.True(t, expected.Equal(actual), "expected %s, got %s", expected, actual)
}
