/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package sketch coordinates multiplayer draw-and-guess rooms: membership,
// turn rotation, stroke broadcast and guess scoring.
//
// Each room is guarded by its own mutex, so calls against different rooms
// run in parallel while calls against the same room are serialized. Events
// are queued into per-subscriber buffers while the room lock is held and
// never block on the reader.
package sketch

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxNameLength = 32

type playerRecord struct {
	Player

	room           string
	disconnectedAt time.Time
}

// Coordinator is the single entry point into the game state. It is safe for
// concurrent use.
type Coordinator struct {
	opts  Options
	words WordSource
	clock Clock
	ids   IDGenerator
	logf  func(format string, args ...any)

	// mu guards the rooms map only. It may be taken while a room lock is
	// held, never the other way around.
	mu       sync.RWMutex
	rooms    map[string]*room
	shutdown bool

	playersMu sync.RWMutex
	players   map[string]*playerRecord

	closeOnce sync.Once
}

// New returns a Coordinator drawing secret words from words. A nil source
// falls back to the built-in list.
func New(words WordSource, opts Options) *Coordinator {
	opts = opts.withDefaults()

	if words == nil {
		words, _ = LoadWordList("", WordsShuffle)
	}

	return &Coordinator{
		opts:    opts,
		words:   words,
		clock:   opts.Clock,
		ids:     opts.IDs,
		logf:    opts.Logf,
		rooms:   make(map[string]*room),
		players: make(map[string]*playerRecord),
	}
}

func (c *Coordinator) Options() Options {
	return c.opts
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}

	return name, nil
}

// Connect registers a new player for a fresh connection. The id is
// independent of the display name, so two players may share a name.
func (c *Coordinator) Connect(name string) (Player, error) {
	name, err := validName(name)
	if err != nil {
		return Player{}, err
	}

	p := Player{ID: uuid.NewString(), Name: name}

	c.playersMu.Lock()
	c.players[p.ID] = &playerRecord{Player: p}
	c.playersMu.Unlock()

	c.logf("ROOMS: Player %s connected as %q", p.ID, p.Name)

	return p, nil
}

// Resume reclaims a player id issued by an earlier Connect, as presented by
// a reconnecting client. If the record was already reclaimed by the sweep a
// new one is created under the same id.
func (c *Coordinator) Resume(id, name string) (Player, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Player{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}

	name, err := validName(name)
	if err != nil {
		return Player{}, err
	}

	c.playersMu.Lock()
	defer c.playersMu.Unlock()

	rec, ok := c.players[id]
	if !ok {
		rec = &playerRecord{Player: Player{ID: id}}
		c.players[id] = rec
	}
	rec.Name = name
	rec.disconnectedAt = time.Time{}

	return rec.Player, nil
}

func (c *Coordinator) player(id string) (playerRecord, bool) {
	c.playersMu.RLock()
	defer c.playersMu.RUnlock()

	rec, ok := c.players[id]
	if !ok {
		return playerRecord{}, false
	}

	return *rec, true
}

// Player returns the registered player and the room it is currently in.
func (c *Coordinator) Player(id string) (Player, string, bool) {
	rec, ok := c.player(id)

	return rec.Player, rec.room, ok
}

func (c *Coordinator) setPlayerRoom(id, from, to string) {
	c.playersMu.Lock()
	defer c.playersMu.Unlock()

	rec, ok := c.players[id]
	if !ok {
		return
	}

	if from == "" || rec.room == from {
		rec.room = to
	}
}

func (c *Coordinator) lookup(id string) *room {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rooms[strings.ToUpper(id)]
}

// withRoom runs fn inside the room's critical section. A panic or broken
// invariant inside fn fails this room only.
func (c *Coordinator) withRoom(id string, fn func(r *room, now time.Time) error) error {
	r := c.lookup(id)
	if r == nil {
		return ErrRoomNotFound
	}

	return c.do(r, c.clock.Now(), fn)
}

func (c *Coordinator) do(r *room, now time.Time, fn func(r *room, now time.Time) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}

	defer func() {
		if p := recover(); p != nil {
			c.failLocked(r, now, fmt.Errorf("panic: %v", p))
			err = ErrRoomFailed

			return
		}

		if cerr := r.checkLocked(); cerr != nil {
			c.failLocked(r, now, cerr)
			err = ErrRoomFailed
		}
	}()

	return fn(r, now)
}

// failLocked forces the room into a consistent finished state and tells
// every member why.
func (c *Coordinator) failLocked(r *room, now time.Time, cause error) {
	c.logf("ROOMS: Room %s failed: %v", r.id, cause)

	r.stopTimerLocked()
	r.turnToken++

	r.status = StatusFinished
	r.paused = false
	r.drawerID = ""
	r.drawerIdx = -1
	r.word = ""
	r.round = min(r.round, r.maxRounds)
	r.strokes.reset()
	r.guessed = 0
	clear(r.scored)

	kept := r.members[:0]
	for _, m := range r.members {
		if m == nil {
			continue
		}
		m.score = max(m.score, 0)
		kept = append(kept, m)
	}
	r.members = kept

	if m, _ := r.memberLocked(r.hostID); m == nil {
		r.hostID = ""
		if len(r.members) > 0 {
			r.hostID = r.members[0].id
		}
	}

	r.publishLocked(Event{Type: EventGameOver, Standings: r.standingsLocked(), Reason: ReasonInternalError})
	r.publishStateLocked(now, ReasonInternalError)
}

// closeLocked notifies subscribers and marks the room dead. The caller
// removes it from the registry once the room lock is released.
func (c *Coordinator) closeLocked(r *room, reason string) {
	r.stopTimerLocked()
	r.turnToken++
	r.closed = true

	r.publishLocked(Event{Type: EventRoomClosed, Reason: reason})

	for id := range r.subs {
		r.dropSubLocked(id, ErrRoomClosed)
	}

	c.logf("ROOMS: Closed room %s (%s)", r.id, reason)
}

func (c *Coordinator) remove(ids ...string) {
	c.mu.Lock()
	for _, id := range ids {
		delete(c.rooms, id)
	}
	c.mu.Unlock()
}

// GetRoom returns a snapshot of the room's public state.
func (c *Coordinator) GetRoom(id string) (RoomView, bool) {
	var v RoomView

	err := c.withRoom(id, func(r *room, now time.Time) error {
		v = r.viewLocked(now)

		return nil
	})

	return v, err == nil
}

// ListRooms returns snapshots of every open room ordered by id.
func (c *Coordinator) ListRooms() []RoomView {
	c.mu.RLock()
	rooms := slices.Collect(maps.Values(c.rooms))
	c.mu.RUnlock()

	views := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		_ = c.do(r, c.clock.Now(), func(r *room, now time.Time) error {
			views = append(views, r.viewLocked(now))

			return nil
		})
	}

	slices.SortFunc(views, func(a, b RoomView) int {
		return strings.Compare(a.ID, b.ID)
	})

	return views
}

// Run sweeps idle rooms every SweepInterval until ctx is cancelled, then
// closes every room.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()

			return
		case <-ticker.C():
			if removed := c.SweepIdle(c.clock.Now()); len(removed) > 0 {
				c.logf("ROOMS: Swept %d idle room(s): %s", len(removed), strings.Join(removed, ", "))
			}
		}
	}
}

// Close ends every room with a room_closed event. Later calls to CreateRoom fail.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.shutdown = true
		rooms := slices.Collect(maps.Values(c.rooms))
		c.mu.Unlock()

		ids := make([]string, 0, len(rooms))
		for _, r := range rooms {
			_ = c.do(r, c.clock.Now(), func(r *room, _ time.Time) error {
				c.closeLocked(r, ReasonShutdown)

				return nil
			})
			ids = append(ids, r.id)
		}

		c.remove(ids...)
	})
}
