package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/goverland-labs/teams-subscriptions/internal/metrics"
)

// MembershipReader resolves current suite <-> case relations.
type MembershipReader interface {
	MembersOf(ctx context.Context, suiteID uuid.UUID) ([]uuid.UUID, error)
	CollectionsOf(ctx context.Context, caseID uuid.UUID) ([]uuid.UUID, error)
}

// MembershipTracker replays suite subscriptions onto suite cases. Subscribing to a
// suite is a standing rule: every later case addition inherits the subscribers.
type MembershipTracker struct {
	store Store
}

func NewMembershipTracker(s Store) *MembershipTracker {
	return &MembershipTracker{store: s}
}

func (t *MembershipTracker) OnMemberAdded(ctx context.Context, suiteID, caseID uuid.UUID) error {
	return t.OnMembersAdded(ctx, suiteID, []uuid.UUID{caseID})
}

// OnMembersAdded applies one membership batch inside a single transaction.
func (t *MembershipTracker) OnMembersAdded(ctx context.Context, suiteID uuid.UUID, caseIDs []uuid.UUID) error {
	if len(caseIDs) == 0 {
		return nil
	}

	created := 0
	err := t.store.Transaction(ctx, func(tx Store) error {
		users, err := tx.ListActiveSubscribers(ctx, EventTestExecutionFail, SuiteTarget(suiteID))
		if err != nil {
			return fmt.Errorf("get suite subscribers: %w", err)
		}

		for _, caseID := range caseIDs {
			for _, userID := range users {
				if _, err := tx.GetOrCreate(ctx, userID, EventTestExecutionFail, CaseTarget(caseID)); err != nil {
					return fmt.Errorf("subscribe %s on case %s: %w", userID, caseID, err)
				}
				created++
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	metrics.CollectCascadeRows("member_added", created)
	log.Debug().
		Str("suite", suiteID.String()).
		Int("cases", len(caseIDs)).
		Int("rows", created).
		Msg("suite subscribers propagated")

	return nil
}

// OnMemberRemoved does not revoke anything: the case may belong to other suites
// or carry a direct subscription.
func (t *MembershipTracker) OnMemberRemoved(_ context.Context, suiteID, caseID uuid.UUID) error {
	log.Debug().
		Str("suite", suiteID.String()).
		Str("case", caseID.String()).
		Msg("case removed from suite, subscriptions kept")

	return nil
}

// OnCollectionSubscriptionCleared deactivates the suite rows of every current
// suite subscriber and their rows on the given current cases. Rows are kept.
func (t *MembershipTracker) OnCollectionSubscriptionCleared(ctx context.Context, suiteID uuid.UUID, caseIDs []uuid.UUID) error {
	var cleared int
	err := t.store.Transaction(ctx, func(tx Store) error {
		users, err := tx.ListActiveSubscribers(ctx, EventTestExecutionFail, SuiteTarget(suiteID))
		if err != nil {
			return fmt.Errorf("get suite subscribers: %w", err)
		}
		if len(users) == 0 {
			return nil
		}

		targets := append([]Target{SuiteTarget(suiteID)}, caseTargets(caseIDs)...)
		if err := tx.SetActiveForUsers(ctx, EventTestExecutionFail, targets, users, false); err != nil {
			return fmt.Errorf("deactivate suite subscriptions: %w", err)
		}
		cleared = len(users) * len(targets)

		return nil
	})
	if err != nil {
		return err
	}

	metrics.CollectCascadeRows("collection_cleared", cleared)

	return nil
}
