package scheduler

import (
	"context"
	"time"

	"github.com/capsulevault/capsule-server/internal/logger"
	"github.com/capsulevault/capsule-server/internal/model"
)

// CapsuleSource is what a scheduler session needs from the capsule store.
type CapsuleSource interface {
	ListCapsules(ctx context.Context, username string) ([]model.Capsule, error)
	PruneExpired(ctx context.Context, username string) (int, error)
}

// NotifyFunc receives the refreshed display snapshot once per tick.
type NotifyFunc func(Snapshot)

// Scheduler drives the capsule lifecycle for displayed accounts. Each tick
// re-derives all state from the store using absolute timestamps, so a missed
// tick never accumulates drift; the only mutation a tick performs is pruning
// opened capsules whose retention has elapsed.
type Scheduler struct {
	source   CapsuleSource
	logger   *logger.Logger
	interval time.Duration
	now      func() time.Time
}

func New(source CapsuleSource, interval time.Duration, logger *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		source:   source,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Session is the handle for one account's running tick loop.
type Session struct {
	username string
	cancel   context.CancelFunc
	done     chan struct{}
}

// Stop cancels the tick loop and blocks until it has fully exited, so no
// tick or automatic prune can fire against a torn-down session.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

// Done is closed when the tick loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start launches the tick loop for one account and returns its handle.
// The first evaluation happens immediately; afterwards the loop fires on the
// configured interval until the handle is stopped or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, username string, notify NotifyFunc) *Session {
	ctx, cancel := context.WithCancel(ctx)
	session := &Session{
		username: username,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go s.run(ctx, username, notify, session.done)

	return session
}

func (s *Scheduler) run(ctx context.Context, username string, notify NotifyFunc, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, username, notify)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, username, notify)
		}
	}
}

// tick prunes due capsules, then recomputes and publishes the display
// snapshot. Failures are logged and retried on the next tick; prune is
// idempotent so the retry is safe.
func (s *Scheduler) tick(ctx context.Context, username string, notify NotifyFunc) {
	if _, err := s.source.PruneExpired(ctx, username); err != nil {
		s.logger.Error("Scheduler: prune failed, retrying next tick",
			"username", username,
			"error", err.Error())
	}

	capsules, err := s.source.ListCapsules(ctx, username)
	if err != nil {
		s.logger.Error("Scheduler: failed to list capsules",
			"username", username,
			"error", err.Error())
		return
	}

	snapshot := s.buildSnapshot(username, capsules)

	select {
	case <-ctx.Done():
		return
	default:
	}

	notify(snapshot)
}

func (s *Scheduler) buildSnapshot(username string, capsules []model.Capsule) Snapshot {
	now := s.now()
	views := make([]CapsuleView, 0, len(capsules))
	for i, capsule := range capsules {
		views = append(views, BuildView(capsule, i+1, now))
	}

	return Snapshot{
		Username: username,
		Capsules: views,
	}
}
