/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true

	return true
}

type fakeTicker struct {
	clock   *fakeClock
	every   time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	t.stopped = true
}

// fakeClock only moves when Advance is called. Due timers run on the
// caller's goroutine after the clock lock is released. Tickers drop ticks
// nobody is waiting for, as time.Ticker does.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)

	return t
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTicker{clock: c, every: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)

	return t
}

// running counts tickers that have not been stopped.
func (c *fakeClock) running() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}

	return n
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	for _, t := range c.tickers {
		if t.stopped || t.next.After(c.now) {
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
		t.next = c.now.Add(t.every)
	}

	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// pending counts timers that are armed and not yet due.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}

	return n
}

// fixedIDs hands out the listed room codes in order, then falls back to
// random ones.
type fixedIDs struct {
	mu  sync.Mutex
	ids []string
}

func (f *fixedIDs) RoomID() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.ids) == 0 {
		return randomRoomID(RoomIDLength)
	}

	id := f.ids[0]
	f.ids = f.ids[1:]

	return id
}

// scriptedWords cycles through a fixed list.
type scriptedWords struct {
	mu    sync.Mutex
	words []string
	next  int
	err   error
}

func (s *scriptedWords) NextWord() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}

	w := s.words[s.next%len(s.words)]
	s.next++

	return w, nil
}

type testEnv struct {
	c     *Coordinator
	clock *fakeClock
	words *scriptedWords
	ids   *fixedIDs
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()

	env := &testEnv{
		clock: newFakeClock(),
		words: &scriptedWords{words: []string{"cat", "fire truck", "banana", "lighthouse"}},
		ids:   &fixedIDs{ids: []string{"ABC123"}},
	}

	opts := DefaultOptions()
	opts.Clock = env.clock
	opts.IDs = env.ids
	opts.Logf = t.Logf

	for _, m := range mutate {
		m(&opts)
	}

	env.c = New(env.words, opts)
	t.Cleanup(env.c.Close)

	return env
}

func (e *testEnv) connect(t *testing.T, name string) Player {
	t.Helper()

	p, err := e.c.Connect(name)
	require.NoError(t, err)

	return p
}

// room creates a room hosted by the first player and joins the rest.
func (e *testEnv) room(t *testing.T, names ...string) (string, []Player) {
	t.Helper()

	players := make([]Player, 0, len(names))
	for _, n := range names {
		players = append(players, e.connect(t, n))
	}

	id, err := e.c.CreateRoom(players[0].ID)
	require.NoError(t, err)

	for _, p := range players[1:] {
		_, err := e.c.JoinRoom(id, p.ID)
		require.NoError(t, err)
	}

	return id, players
}

func (e *testEnv) view(t *testing.T, id string) RoomView {
	t.Helper()

	v, ok := e.c.GetRoom(id)
	require.True(t, ok, "room %s should exist", id)

	return v
}

// drain returns every event already queued on sub without blocking.
func drain(sub *Subscription) []Event {
	var out []Event

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofType(events []Event, typ EventType) []Event {
	var out []Event

	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}

	return out
}

func seqs(events []Event) []uint64 {
	out := make([]uint64, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Seq)
	}

	return out
}

func dot(x, y float64) Segment {
	return Segment{Points: []Point{{X: x, Y: y}}, Tool: ToolBrush, Color: "#000000", Width: 4}
}
