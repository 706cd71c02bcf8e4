package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// OwnershipTracker keeps author and maintainer subscriptions in sync. Both roles
// share the row keyed by (user, kind, target), so holding both never duplicates it.
type OwnershipTracker struct {
	store Store
}

func NewOwnershipTracker(s Store) *OwnershipTracker {
	return &OwnershipTracker{store: s}
}

func (t *OwnershipTracker) OnOwnerAssigned(ctx context.Context, caseID, owner uuid.UUID) error {
	if _, err := t.store.GetOrCreate(ctx, owner, EventTestExecutionFail, CaseTarget(caseID)); err != nil {
		return fmt.Errorf("subscribe owner %s: %w", owner, err)
	}

	return nil
}

// OnOwnerChanged deactivates the previous owner before activating the new one in
// the same transaction, so readers never see the case without an owner row.
func (t *OwnershipTracker) OnOwnerChanged(ctx context.Context, caseID uuid.UUID, oldOwner, newOwner *uuid.UUID) error {
	return t.store.Transaction(ctx, func(tx Store) error {
		if oldOwner != nil && (newOwner == nil || *oldOwner != *newOwner) {
			if err := tx.SetActive(ctx, *oldOwner, EventTestExecutionFail, CaseTarget(caseID), false); err != nil {
				return fmt.Errorf("unsubscribe previous owner %s: %w", *oldOwner, err)
			}
		}

		if newOwner == nil {
			return nil
		}

		return NewOwnershipTracker(tx).OnOwnerAssigned(ctx, caseID, *newOwner)
	})
}

func (t *OwnershipTracker) OnMaintainerAdded(ctx context.Context, caseID, userID uuid.UUID) error {
	if _, err := t.store.GetOrCreate(ctx, userID, EventTestExecutionFail, CaseTarget(caseID)); err != nil {
		return fmt.Errorf("subscribe maintainer %s: %w", userID, err)
	}

	return nil
}

func (t *OwnershipTracker) OnMaintainerRemoved(ctx context.Context, caseID, userID uuid.UUID) error {
	if err := t.store.SetActive(ctx, userID, EventTestExecutionFail, CaseTarget(caseID), false); err != nil {
		return fmt.Errorf("unsubscribe maintainer %s: %w", userID, err)
	}

	return nil
}

// OnMaintainersCleared deactivates the rows of all former maintainers at once.
func (t *OwnershipTracker) OnMaintainersCleared(ctx context.Context, caseID uuid.UUID, users []uuid.UUID) error {
	if len(users) == 0 {
		return nil
	}

	if err := t.store.SetActiveForUsers(ctx, EventTestExecutionFail, []Target{CaseTarget(caseID)}, users, false); err != nil {
		return fmt.Errorf("unsubscribe maintainers: %w", err)
	}

	return nil
}
