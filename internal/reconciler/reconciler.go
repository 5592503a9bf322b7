// internal/reconciler/reconciler.go

// Package reconciler maintains a client-side mirror of one lobby. The mirror
// starts from a server snapshot and folds committed events into it; the only
// optimistic mutation is the user's own ready toggle, which rolls back to the
// exact pre-toggle state when the send fails.
package reconciler

import (
	"sync"

	"github.com/blue-orion/pongservice/internal/lobby"
	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
)

// Reconciler folds the lobby event stream into a local view. Safe for
// concurrent use by a render loop and a receive loop.
type Reconciler struct {
	mu      sync.Mutex
	snap    lobby.Snapshot
	lastSeq int64

	// rollback holds the pre-optimistic state while a ready toggle is in
	// flight; nil when the view is fully confirmed.
	rollback     *lobby.Snapshot
	rollbackUser uuid.UUID
}

// New starts the mirror from a subscribe-time snapshot.
func New(snap lobby.Snapshot) *Reconciler {
	return &Reconciler{snap: snap.Clone()}
}

// ReplaceSnapshot resets the view from a fresh server snapshot, as after a
// reconnect. Any in-flight optimistic state is discarded; the snapshot is
// authoritative.
func (r *Reconciler) ReplaceSnapshot(snap lobby.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = snap.Clone()
	r.rollback = nil
}

// View returns a deep copy of the current local state.
func (r *Reconciler) View() lobby.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Clone()
}

// LastSeq returns the sequence of the newest applied event.
func (r *Reconciler) LastSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

// ToggleReady applies the flip locally, then calls send. If send fails the
// view reverts to the exact state captured before the optimistic update.
func (r *Reconciler) ToggleReady(userID uuid.UUID, send func() error) error {
	r.mu.Lock()
	saved := r.snap.Clone()
	r.rollback = &saved
	r.rollbackUser = userID
	if p := r.player(userID); p != nil {
		p.IsReady = !p.IsReady
	}
	r.recomputeAllReady()
	r.mu.Unlock()

	if err := send(); err != nil {
		r.mu.Lock()
		if r.rollback != nil {
			r.snap = *r.rollback
			r.rollback = nil
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

// Apply folds one committed event into the view. Events are idempotent: a
// stale or redelivered sequence is skipped outright, and each application is
// written absolutely rather than incrementally.
func (r *Reconciler) Apply(ev lobby.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.ServerSeq != 0 && ev.ServerSeq <= r.lastSeq {
		return
	}
	if ev.ServerSeq > r.lastSeq {
		r.lastSeq = ev.ServerSeq
	}

	switch p := ev.Payload.(type) {
	case lobby.PlayerJoinedPayload:
		r.upsertPlayer(p.Player)

	case lobby.PlayerLeftPayload:
		if row := r.player(p.UserID); row != nil {
			row.Enabled = false
			row.IsReady = false
			row.IsLeader = false
		}
		r.recomputeAllReady()

	case lobby.ReadyChangedPayload:
		if row := r.player(p.UserID); row != nil {
			row.IsReady = p.IsReady
		}
		r.snap.AllReady = p.AllReady
		// The server confirmed our own toggle; the optimistic state stands.
		if r.rollback != nil && p.UserID == r.rollbackUser {
			r.rollback = nil
		}

	case lobby.LeadershipChangedPayload:
		for i := range r.snap.Players {
			r.snap.Players[i].IsLeader = r.snap.Players[i].UserID == p.NewLeaderID
		}
		r.snap.Lobby.CreatorID = p.NewLeaderID

	case lobby.MatchCreatedPayload:
		r.snap.Lobby.Status = models.LobbyStarted
		r.snap.Tournament.Status = models.TournamentInProgress
		r.snap.Tournament.Round = p.Round
		for i := range r.snap.Players {
			r.snap.Players[i].IsReady = false
		}
		r.snap.AllReady = false
		for _, g := range p.Games {
			r.upsertGame(g)
		}
		// A round opening invalidates any in-flight optimistic toggle.
		r.rollback = nil

	case lobby.MatchResultPayload:
		r.upsertGame(p.Game)
		if p.Game.LoserID != nil {
			if row := r.player(*p.Game.LoserID); row != nil {
				row.Enabled = false
				row.IsReady = false
				row.IsLeader = false
			}
		}
		r.recomputeAllReady()

	case lobby.TournamentCompletedPayload:
		r.snap.Lobby.Status = models.LobbyCompleted
		r.snap.Tournament.Status = models.TournamentCompleted
		r.snap.Tournament.WinnerID = p.WinnerID
		r.rollback = nil

	case lobby.ChatPayload:
		// Chat carries no lobby state.
	}
}

func (r *Reconciler) player(userID uuid.UUID) *models.LobbyPlayer {
	for i := range r.snap.Players {
		if r.snap.Players[i].UserID == userID {
			return &r.snap.Players[i]
		}
	}
	return nil
}

func (r *Reconciler) upsertPlayer(row models.LobbyPlayer) {
	if row.IsLeader {
		for i := range r.snap.Players {
			r.snap.Players[i].IsLeader = false
		}
		r.snap.Lobby.CreatorID = row.UserID
	}
	if existing := r.player(row.UserID); existing != nil {
		*existing = row
	} else {
		r.snap.Players = append(r.snap.Players, row)
	}
	r.recomputeAllReady()
}

func (r *Reconciler) upsertGame(g models.Game) {
	for i := range r.snap.Games {
		if r.snap.Games[i].ID == g.ID {
			r.snap.Games[i] = g
			return
		}
	}
	r.snap.Games = append(r.snap.Games, g)
}

func (r *Reconciler) recomputeAllReady() {
	n := 0
	for _, p := range r.snap.Players {
		if !p.Enabled {
			continue
		}
		n++
		if !p.IsReady {
			r.snap.AllReady = false
			return
		}
	}
	r.snap.AllReady = n >= 1
}
