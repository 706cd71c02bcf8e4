package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const SubjectSummary = "teams.notifications.summary"

type Summary struct {
	RecipientID uuid.UUID     `json:"recipient_id"`
	Username    string        `json:"username"`
	Email       string        `json:"email"`
	Since       time.Time     `json:"since"`
	Failures    int64         `json:"failures"`
	TopTargets  []TargetCount `json:"top_targets"`
	Text        string        `json:"text"`
}

func (s Summary) render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hello %s,\n\n", s.Username)
	sb.WriteString("Here is your test failure summary since the last email:\n")
	fmt.Fprintf(&sb, "- Total new failures: %d\n", s.Failures)

	if len(s.TopTargets) == 0 {
		sb.WriteString("\nNo tests failed recently.\n")

		return sb.String()
	}

	sb.WriteString("\nTop failing tests:\n")
	for _, t := range s.TopTargets {
		name := t.Name
		if name == "" {
			name = t.TargetID.String()
		}
		fmt.Fprintf(&sb, "- %s (Failures: %d)\n", name, t.Count)
	}

	return sb.String()
}

type DigestPreferences interface {
	DigestEnabled(ctx context.Context, userID uuid.UUID) (bool, error)
}

// DigestWorker periodically publishes, per user, a summary of the unread failure
// notifications received during the last interval.
type DigestWorker struct {
	repo     *Repo
	users    UserProvider
	prefs    DigestPreferences
	pub      publisher
	interval time.Duration
	topLimit int
}

func NewDigestWorker(r *Repo, up UserProvider, dp DigestPreferences, p publisher, interval time.Duration, topLimit int) *DigestWorker {
	return &DigestWorker{
		repo:     r,
		users:    up,
		prefs:    dp,
		pub:      p,
		interval: interval,
		topLimit: topLimit,
	}
}

func (w *DigestWorker) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.interval):
		}

		if err := w.process(ctx, time.Now()); err != nil {
			log.Error().Err(err).Msg("process digest")
		}
	}
}

func (w *DigestWorker) process(ctx context.Context, now time.Time) error {
	since := now.Add(-w.interval)
	users, err := w.repo.UsersWithUnreadSince(ctx, since)
	if err != nil {
		return fmt.Errorf("get users with unread notifications: %w", err)
	}

	sent := 0
	for _, userID := range users {
		enabled, err := w.prefs.DigestEnabled(ctx, userID)
		if err != nil {
			log.Error().Err(err).Str("user", userID.String()).Msg("get digest preferences")
			continue
		}
		if !enabled {
			continue
		}

		summary, err := w.build(ctx, userID, since)
		if err != nil {
			log.Error().Err(err).Str("user", userID.String()).Msg("build summary")
			continue
		}

		data, err := json.Marshal(summary)
		if err != nil {
			log.Error().Err(err).Str("user", userID.String()).Msg("marshal summary")
			continue
		}

		if err := w.pub.Publish(SubjectSummary, data); err != nil {
			log.Error().Err(err).Str("user", userID.String()).Msg("publish summary")
			continue
		}
		sent++
	}

	log.Info().
		Int("users", len(users)).
		Int("sent", sent).
		Msg("notification digest finished")

	return nil
}

func (w *DigestWorker) build(ctx context.Context, userID uuid.UUID, since time.Time) (Summary, error) {
	u, err := w.users.GetByID(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("get user: %w", err)
	}

	cnt, err := w.repo.CountUnreadSince(ctx, userID, since)
	if err != nil {
		return Summary{}, fmt.Errorf("count unread: %w", err)
	}

	top, err := w.repo.TopTargetsSince(ctx, userID, since, w.topLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("get top targets: %w", err)
	}

	s := Summary{
		RecipientID: userID,
		Username:    u.Username,
		Email:       u.Email,
		Since:       since,
		Failures:    cnt,
		TopTargets:  top,
	}
	s.Text = s.render()

	return s, nil
}
