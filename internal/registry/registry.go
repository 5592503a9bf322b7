// internal/registry/registry.go

// Package registry owns every live lobby aggregate and serializes access to
// it: one worker goroutine per lobby id, commands applied strictly in
// receipt order. Different lobbies run fully in parallel; nothing ever locks
// across lobbies. The registry also runs the lifecycle sweep that reaps
// zombie lobbies.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blue-orion/pongservice/internal/gateway"
	"github.com/blue-orion/pongservice/internal/lobby"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Command runs inside a lobby's worker with exclusive access to the
// aggregate. Returned events are published after the command commits.
type Command func(ctx context.Context, agg *lobby.Aggregate) ([]lobby.Event, error)

// EventJournal receives every committed event for out-of-process history
// consumers. Journal failures are logged, never surfaced to the caller.
type EventJournal interface {
	PublishEvent(ctx context.Context, ev lobby.Event) error
}

// Registry routes commands to per-lobby workers.
type Registry struct {
	log     *logrus.Logger
	store   lobby.Store
	hub     *gateway.Hub
	journal EventJournal

	clock      clockwork.Clock
	submitWait time.Duration
	sweepEvery time.Duration
	inboxSize  int

	mu      sync.Mutex
	workers map[uuid.UUID]*worker
}

// New builds a registry. journal may be nil.
func New(log *logrus.Logger, store lobby.Store, hub *gateway.Hub, journal EventJournal) *Registry {
	return &Registry{
		log:        log,
		store:      store,
		hub:        hub,
		journal:    journal,
		clock:      clockwork.NewRealClock(),
		submitWait: 2 * time.Second,
		sweepEvery: 30 * time.Second,
		inboxSize:  64,
		workers:    make(map[uuid.UUID]*worker),
	}
}

type task struct {
	ctx  context.Context
	run  Command
	done chan error
}

type worker struct {
	lobbyID uuid.UUID
	inbox   chan *task
	reg     *Registry
	agg     *lobby.Aggregate // nil until loaded inside the loop
	closed  bool             // guarded by reg.mu; set before the retiring drain
}

func (w *worker) isClosed() bool {
	w.reg.mu.Lock()
	defer w.reg.mu.Unlock()
	return w.closed
}

// Hub exposes the gateway hub so session handlers can manage subscriptions.
func (r *Registry) Hub() *gateway.Hub { return r.hub }

// SetSweepInterval overrides the zombie sweep cadence. Call before
// RunSweeper.
func (r *Registry) SetSweepInterval(d time.Duration) {
	if d > 0 {
		r.sweepEvery = d
	}
}

// Execute runs cmd inside the lobby's worker and waits for the result. If
// the worker's queue does not accept the command within the bounded wait,
// the retryable ErrLobbyBusy is returned instead of queuing unboundedly.
func (r *Registry) Execute(ctx context.Context, lobbyID uuid.UUID, cmd Command) error {
	t := &task{ctx: ctx, run: cmd, done: make(chan error, 1)}

	for attempt := 0; ; attempt++ {
		w := r.worker(lobbyID, nil)
		select {
		case w.inbox <- t:
			// The send can land in the inbox of a worker that retired between
			// the lookup and here. The closed flag is set before the retiring
			// worker drains, so observing it means one more drain is enough to
			// hand the task to the replacement.
			if w.isClosed() {
				r.drainRetired(w)
			}
		case <-r.clock.After(r.submitWait):
			// Retry once against the replacement before giving up.
			if w.isClosed() && attempt == 0 {
				continue
			}
			return lobby.ErrLobbyBusy
		case <-ctx.Done():
			return ctx.Err()
		}
		break
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateLobby creates the lobby, adopts a worker for it and returns the
// initial snapshot.
func (r *Registry) CreateLobby(ctx context.Context, creatorID uuid.UUID, tournamentType int) (lobby.Snapshot, error) {
	agg, events, err := lobby.New(ctx, r.store, creatorID, tournamentType)
	if err != nil {
		return lobby.Snapshot{}, err
	}
	// Snapshot and publish before the worker exists; afterwards only the
	// worker may touch the aggregate.
	snap := agg.Snapshot()
	for _, ev := range events {
		r.publish(ctx, ev)
	}
	r.worker(agg.Lobby().ID, agg)
	return snap, nil
}

// Join adds the user and returns the resulting snapshot.
func (r *Registry) Join(ctx context.Context, lobbyID, userID uuid.UUID) (lobby.Snapshot, error) {
	var snap lobby.Snapshot
	err := r.Execute(ctx, lobbyID, func(ctx context.Context, agg *lobby.Aggregate) ([]lobby.Event, error) {
		events, err := agg.Join(ctx, userID)
		if err != nil {
			return nil, err
		}
		snap = agg.Snapshot()
		return events, nil
	})
	return snap, err
}

// Leave removes the user's enabled membership.
func (r *Registry) Leave(ctx context.Context, lobbyID, userID uuid.UUID) error {
	return r.Execute(ctx, lobbyID, func(ctx context.Context, agg *lobby.Aggregate) ([]lobby.Event, error) {
		return agg.Leave(ctx, userID)
	})
}

// ToggleReady flips the user's ready flag, returning the new state.
func (r *Registry) ToggleReady(ctx context.Context, lobbyID, userID uuid.UUID) (bool, error) {
	var ready bool
	err := r.Execute(ctx, lobbyID, func(ctx context.Context, agg *lobby.Aggregate) ([]lobby.Event, error) {
		state, events, err := agg.ToggleReady(ctx, userID)
		ready = state
		return events, err
	})
	return ready, err
}

// TransferLeadership hands the leader flag to target.
func (r *Registry) TransferLeadership(ctx context.Context, lobbyID, requesterID, targetID uuid.UUID) error {
	return r.Execute(ctx, lobbyID, func(ctx context.Context, agg *lobby.Aggregate) ([]lobby.Event, error) {
		return agg.TransferLeadership(ctx, requesterID, targetID)
	})
}

// CreateMatches generates the next round (or completes the tournament).
func (r *Registry) CreateMatches(ctx context.Context, lobbyID, requesterID uuid.UUID) (*lobby.MatchBatch, error) {
	var batch *lobby.MatchBatch
	err := r.Execute(ctx, lobbyID, func(ctx context.Context, agg *lobby.Aggregate) ([]lobby.Event, error) {
		b, events, err := agg.CreateMatches(ctx, requesterID)
		batch = b
		return events, err
	})
	return batch, err
}

// RecordMatchResult routes a finished match from the gameplay subsystem
// through the owning lobby's serialization point.
func (r *Registry) RecordMatchResult(ctx context.Context, gameID, winnerID, loserID uuid.UUID, score string, playTimeSec int) error {
	lobbyID, err := r.store.LobbyIDForGame(ctx, gameID)
	if err != nil {
		return err
	}
	return r.Execute(ctx, lobbyID, func(ctx context.Context, agg *lobby.Aggregate) ([]lobby.Event, error) {
		return agg.RecordMatchResult(ctx, gameID, winnerID, loserID, score, playTimeSec)
	})
}

// Subscribe atomically takes a state snapshot and registers a gateway
// subscription inside the lobby's worker, so the subscriber misses no event
// committed after its snapshot.
func (r *Registry) Subscribe(ctx context.Context, lobbyID uuid.UUID) (lobby.Snapshot, *gateway.Subscription, error) {
	var snap lobby.Snapshot
	var sub *gateway.Subscription
	err := r.Execute(ctx, lobbyID, func(ctx context.Context, agg *lobby.Aggregate) ([]lobby.Event, error) {
		snap = agg.Snapshot()
		sub = r.hub.Subscribe(lobbyID)
		return nil, nil
	})
	if err != nil {
		return lobby.Snapshot{}, nil, err
	}
	return snap, sub, nil
}

// Chat relays a chat message to the lobby's topic. Chat is not
// gameplay-critical and bypasses the aggregate entirely.
func (r *Registry) Chat(ctx context.Context, lobbyID, userID uuid.UUID, username, msg string) {
	r.publish(ctx, lobby.Event{
		Type:    lobby.EventChat,
		LobbyID: lobbyID,
		Payload: lobby.ChatPayload{
			UserID:   userID,
			Username: username,
			Msg:      msg,
			Ts:       time.Now().Unix(),
		},
	})
}

// RunSweeper periodically reaps zombie lobbies until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := r.clock.NewTicker(r.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce finds STARTED lobbies with zero enabled players and finalizes
// them. Self-healing for the everyone-disconnected case; never user-visible
// as an error.
func (r *Registry) SweepOnce(ctx context.Context) {
	zombies, err := r.store.ListZombieLobbies(ctx)
	if err != nil {
		r.log.WithError(err).Warn("zombie lobby sweep failed")
		return
	}
	for _, z := range zombies {
		err := r.Execute(ctx, z.ID, func(ctx context.Context, agg *lobby.Aggregate) ([]lobby.Event, error) {
			return agg.Reap(ctx)
		})
		if err != nil {
			r.log.WithError(err).WithField("lobby_id", z.ID).Warn("failed to reap zombie lobby")
			continue
		}
		r.log.WithField("lobby_id", z.ID).Info("reaped zombie lobby")
	}
}

// worker returns the live worker for the lobby, creating one if needed.
// preloaded is non-nil only for freshly created lobbies.
func (r *Registry) worker(lobbyID uuid.UUID, preloaded *lobby.Aggregate) *worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[lobbyID]; ok {
		return w
	}
	w := &worker{
		lobbyID: lobbyID,
		inbox:   make(chan *task, r.inboxSize),
		reg:     r,
		agg:     preloaded,
	}
	r.workers[lobbyID] = w
	go w.loop()
	return w
}

// drainRetired empties a closed worker's inbox onto its replacement. Both
// the retiring worker and any sender that observes the closed flag call
// this; each task is received by exactly one of them.
func (r *Registry) drainRetired(w *worker) {
	for {
		select {
		case t := <-w.inbox:
			r.redispatch(w.lobbyID, t)
		default:
			return
		}
	}
}

func (r *Registry) publish(ctx context.Context, ev lobby.Event) {
	stamped := r.hub.Publish(ev)
	if r.journal == nil {
		return
	}
	if err := r.journal.PublishEvent(ctx, stamped); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"lobby_id": ev.LobbyID,
			"type":     ev.Type,
		}).Warn("event journal publish failed")
	}
}

func (w *worker) loop() {
	for t := range w.inbox {
		if w.agg == nil {
			agg, err := lobby.Load(t.ctx, w.reg.store, w.lobbyID)
			if err != nil {
				t.done <- err
				if errors.Is(err, lobby.ErrLobbyNotFound) {
					w.retire()
					return
				}
				continue // transient load failure, the next command retries
			}
			w.agg = agg
		}

		events, err := t.run(t.ctx, w.agg)
		t.done <- err
		if err != nil {
			continue
		}
		for _, ev := range events {
			w.reg.publish(t.ctx, ev)
		}

		if w.agg.Completed() {
			w.reg.hub.CloseTopic(w.lobbyID)
			w.retire()
			return
		}
		if w.agg.Empty() {
			// Dormant lobby: free the worker. A rejoin or the sweep loads a
			// fresh one from the store.
			w.retire()
			return
		}
	}
}

// retire deregisters the worker and hands any tasks that raced into its
// inbox to a fresh worker, so callers never observe the handover.
func (w *worker) retire() {
	w.reg.mu.Lock()
	w.closed = true
	if w.reg.workers[w.lobbyID] == w {
		delete(w.reg.workers, w.lobbyID)
	}
	w.reg.mu.Unlock()
	w.reg.drainRetired(w)
}

func (r *Registry) redispatch(lobbyID uuid.UUID, t *task) {
	w := r.worker(lobbyID, nil)
	select {
	case w.inbox <- t:
		if w.isClosed() {
			r.drainRetired(w)
		}
	default:
		t.done <- lobby.ErrLobbyBusy
	}
}
