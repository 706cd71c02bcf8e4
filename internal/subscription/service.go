package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/goverland-labs/teams-subscriptions/internal/metrics"
)

// Resolver reports whether a target of one kind exists.
type Resolver func(ctx context.Context, id uuid.UUID) (bool, error)

type UserProvider interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type CatalogReader interface {
	MembershipReader
	AuthorOf(ctx context.Context, caseID uuid.UUID) (*uuid.UUID, error)
}

// Service is the entry point for request handlers and entity mutation hooks.
//
// Suite subscriptions are materialized on write as derived case rows: the table
// grows with suite size, in exchange every fan-out read is a single lookup on the
// case target.
type Service struct {
	store      Store
	catalog    CatalogReader
	users      UserProvider
	resolvers  map[TargetKind]Resolver
	membership *MembershipTracker
	ownership  *OwnershipTracker
}

func NewService(s Store, cr CatalogReader, up UserProvider, resolvers map[TargetKind]Resolver) *Service {
	return &Service{
		store:      s,
		catalog:    cr,
		users:      up,
		resolvers:  resolvers,
		membership: NewMembershipTracker(s),
		ownership:  NewOwnershipTracker(s),
	}
}

// Subscribe activates the rule for the user. For a suite the user is also
// subscribed to every current case, the same state later case additions reach.
//
// Members are read before the transaction and again after commit. A case that
// joined in between is covered by the second read, a case joining after commit
// sees the suite row in OnMembersAdded.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID, kind EventKind, target Target) (*Subscription, error) {
	if err := validate(kind, target); err != nil {
		return nil, err
	}

	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	if err := s.ensureTarget(ctx, target); err != nil {
		return nil, err
	}

	members, err := s.propagationMembers(ctx, kind, target)
	if err != nil {
		return nil, err
	}

	var sub *Subscription
	err = s.store.Transaction(ctx, func(tx Store) error {
		created, err := tx.GetOrCreate(ctx, userID, kind, target)
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		sub = created

		for _, caseID := range members {
			if _, err := tx.GetOrCreate(ctx, userID, kind, CaseTarget(caseID)); err != nil {
				return fmt.Errorf("create case subscription: %s: %w", caseID, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	joined, err := s.catchUpMembers(ctx, userID, kind, target, members)
	if err != nil {
		return nil, err
	}

	metrics.CollectCascadeRows("subscribe", len(members)+joined)
	log.Info().
		Str("user", userID.String()).
		Str("target", target.String()).
		Str("event", string(kind)).
		Int("cases", len(members)+joined).
		Msg("subscribed")

	return sub, nil
}

// Unsubscribe deactivates the rule. Unknown users or targets are ignored.
func (s *Service) Unsubscribe(ctx context.Context, userID uuid.UUID, kind EventKind, target Target) error {
	if err := validate(kind, target); err != nil {
		return err
	}

	var nf *NotFoundError
	if err := s.ensureUser(ctx, userID); errors.As(err, &nf) {
		return nil
	} else if err != nil {
		return err
	}

	if err := s.ensureTarget(ctx, target); errors.As(err, &nf) {
		return nil
	} else if err != nil {
		return err
	}

	members, err := s.propagationMembers(ctx, kind, target)
	if err != nil {
		return err
	}

	err = s.store.Transaction(ctx, func(tx Store) error {
		if err := tx.SetActive(ctx, userID, kind, target, false); err != nil {
			return fmt.Errorf("deactivate subscription: %w", err)
		}

		if err := tx.SetActiveForUsers(ctx, kind, caseTargets(members), []uuid.UUID{userID}, false); err != nil {
			return fmt.Errorf("deactivate case subscriptions: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("user", userID.String()).
		Str("target", target.String()).
		Str("event", string(kind)).
		Msg("unsubscribed")

	return nil
}

// IsSubscribed reports an active TEST_EXECUTION_FAIL rule of the user on the target.
func (s *Service) IsSubscribed(ctx context.Context, userID uuid.UUID, target Target) (bool, error) {
	sub, err := s.store.Get(ctx, userID, EventTestExecutionFail, target)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return sub.Active, nil
}

func (s *Service) ActiveSubscribers(ctx context.Context, kind EventKind, target Target) ([]uuid.UUID, error) {
	return s.store.ListActiveSubscribers(ctx, kind, target)
}

func (s *Service) GetByFilters(ctx context.Context, filters []Filter) (SubscriptionList, error) {
	list, err := s.store.GetByFilters(ctx, filters)
	if err != nil {
		return SubscriptionList{}, fmt.Errorf("get by filters: %w", err)
	}

	return list, nil
}

func (s *Service) OnMemberAdded(ctx context.Context, suiteID, caseID uuid.UUID) error {
	return s.membership.OnMemberAdded(ctx, suiteID, caseID)
}

func (s *Service) OnMembersAdded(ctx context.Context, suiteID uuid.UUID, caseIDs []uuid.UUID) error {
	return s.membership.OnMembersAdded(ctx, suiteID, caseIDs)
}

func (s *Service) OnMemberRemoved(ctx context.Context, suiteID, caseID uuid.UUID) error {
	return s.membership.OnMemberRemoved(ctx, suiteID, caseID)
}

func (s *Service) OnCollectionSubscriptionCleared(ctx context.Context, suiteID uuid.UUID) error {
	members, err := s.catalog.MembersOf(ctx, suiteID)
	if err != nil {
		return fmt.Errorf("get suite members: %w", err)
	}

	return s.membership.OnCollectionSubscriptionCleared(ctx, suiteID, members)
}

func (s *Service) OnOwnerAssigned(ctx context.Context, caseID, owner uuid.UUID) error {
	return s.ownership.OnOwnerAssigned(ctx, caseID, owner)
}

func (s *Service) OnOwnerChanged(ctx context.Context, caseID uuid.UUID, oldOwner, newOwner *uuid.UUID) error {
	return s.ownership.OnOwnerChanged(ctx, caseID, oldOwner, newOwner)
}

func (s *Service) OnMaintainerAdded(ctx context.Context, caseID, userID uuid.UUID) error {
	return s.ownership.OnMaintainerAdded(ctx, caseID, userID)
}

func (s *Service) OnMaintainerRemoved(ctx context.Context, caseID, userID uuid.UUID) error {
	return s.ownership.OnMaintainerRemoved(ctx, caseID, userID)
}

func (s *Service) OnMaintainersCleared(ctx context.Context, caseID uuid.UUID, users []uuid.UUID) error {
	return s.ownership.OnMaintainersCleared(ctx, caseID, users)
}

// OnMemberCreated subscribes the initial author and replays the subscribers of
// every suite the new case was created in.
func (s *Service) OnMemberCreated(ctx context.Context, caseID uuid.UUID) error {
	author, err := s.catalog.AuthorOf(ctx, caseID)
	if err != nil {
		return fmt.Errorf("get case author: %w", err)
	}

	suites, err := s.catalog.CollectionsOf(ctx, caseID)
	if err != nil {
		return fmt.Errorf("get case suites: %w", err)
	}

	return s.store.Transaction(ctx, func(tx Store) error {
		if author != nil {
			if err := NewOwnershipTracker(tx).OnOwnerAssigned(ctx, caseID, *author); err != nil {
				return err
			}
		}

		membership := NewMembershipTracker(tx)
		for _, suiteID := range suites {
			if err := membership.OnMemberAdded(ctx, suiteID, caseID); err != nil {
				return err
			}
		}

		return nil
	})
}

// OnSuiteDeleted drops every row addressed to the removed suite. Derived case rows
// stay: they are indistinguishable from direct case subscriptions.
func (s *Service) OnSuiteDeleted(ctx context.Context, suiteID uuid.UUID) error {
	return s.deleteTarget(ctx, SuiteTarget(suiteID))
}

func (s *Service) OnCaseDeleted(ctx context.Context, caseID uuid.UUID) error {
	return s.deleteTarget(ctx, CaseTarget(caseID))
}

func (s *Service) deleteTarget(ctx context.Context, target Target) error {
	return s.store.Transaction(ctx, func(tx Store) error {
		for _, kind := range []EventKind{EventTestExecutionFail, EventTestRunCreated} {
			if err := tx.DeleteWhere(ctx, kind, []Target{target}, nil); err != nil {
				return fmt.Errorf("delete %s subscriptions: %w", kind, err)
			}
		}

		return nil
	})
}

// catchUpMembers subscribes the user to cases that joined the suite while the
// subscription was being written.
func (s *Service) catchUpMembers(ctx context.Context, userID uuid.UUID, kind EventKind, target Target, known []uuid.UUID) (int, error) {
	current, err := s.propagationMembers(ctx, kind, target)
	if err != nil {
		return 0, err
	}

	seen := make(map[uuid.UUID]struct{}, len(known))
	for _, id := range known {
		seen[id] = struct{}{}
	}

	joined := 0
	for _, caseID := range current {
		if _, ok := seen[caseID]; ok {
			continue
		}
		if _, err := s.store.GetOrCreate(ctx, userID, kind, CaseTarget(caseID)); err != nil {
			return joined, fmt.Errorf("create case subscription: %s: %w", caseID, err)
		}
		joined++
	}

	return joined, nil
}

func (s *Service) propagationMembers(ctx context.Context, kind EventKind, target Target) ([]uuid.UUID, error) {
	if !target.Kind.IsCollection() || !kind.propagated() {
		return nil, nil
	}

	members, err := s.catalog.MembersOf(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("get suite members: %w", err)
	}

	return members, nil
}

func (s *Service) ensureUser(ctx context.Context, userID uuid.UUID) error {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return storageErr("get user", err)
	}
	if !ok {
		return &NotFoundError{Entity: "user", ID: userID}
	}

	return nil
}

func (s *Service) ensureTarget(ctx context.Context, target Target) error {
	resolve, ok := s.resolvers[target.Kind]
	if !ok {
		return &InvalidArgumentError{Field: "target kind", Value: string(target.Kind)}
	}

	exists, err := resolve(ctx, target.ID)
	if err != nil {
		return storageErr("resolve target", err)
	}
	if !exists {
		return &NotFoundError{Entity: string(target.Kind), ID: target.ID}
	}

	return nil
}

func validate(kind EventKind, target Target) error {
	if !kind.Valid() {
		return &InvalidArgumentError{Field: "event kind", Value: string(kind)}
	}

	if !target.Kind.Valid() {
		return &InvalidArgumentError{Field: "target kind", Value: string(target.Kind)}
	}

	return nil
}
