/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toggleWords struct {
	panicking atomic.Bool
}

func (w *toggleWords) NextWord() (string, error) {
	if w.panicking.Load() {
		panic("word list corrupted")
	}

	return "cat", nil
}

func TestPanicFailsOnlyThatRoom(t *testing.T) {
	words := &toggleWords{}

	opts := DefaultOptions()
	opts.Clock = newFakeClock()
	opts.IDs = &fixedIDs{ids: []string{"GOOD01", "BAD001"}}
	c := New(words, opts)
	t.Cleanup(c.Close)

	env := &testEnv{c: c}

	good, goodPlayers := env.room(t, "Alice", "Bob")
	bad, badPlayers := env.room(t, "Carol", "Dave")

	require.NoError(t, c.StartGame(good, goodPlayers[0].ID))

	watcher, err := c.Subscribe(bad, badPlayers[1].ID)
	require.NoError(t, err)

	words.panicking.Store(true)
	err = c.StartGame(bad, badPlayers[0].ID)
	words.panicking.Store(false)
	assert.ErrorIs(t, err, ErrRoomFailed)

	v, ok := c.GetRoom(bad)
	require.True(t, ok)
	assert.Equal(t, StatusFinished, v.Status)
	assert.Empty(t, v.DrawerID)

	over := ofType(drain(watcher), EventGameOver)
	require.Len(t, over, 1)
	assert.Equal(t, ReasonInternalError, over[0].Reason)

	v, ok = c.GetRoom(good)
	require.True(t, ok)
	assert.Equal(t, StatusPlaying, v.Status)

	res, err := c.SubmitGuess(good, goodPlayers[1].ID, "cat")
	require.NoError(t, err)
	assert.Equal(t, GuessCorrect, res.Outcome)

	// A failed room can be started again.
	require.NoError(t, c.StartGame(bad, badPlayers[0].ID))
}

func TestBrokenInvariantFailsRoom(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice", "Bob")
	require.NoError(t, env.c.StartGame(id, players[0].ID))

	r := env.c.lookup(id)
	r.mu.Lock()
	r.drawerID = "ghost"
	r.mu.Unlock()

	_, err := env.c.SubmitGuess(id, players[1].ID, "dog")
	assert.ErrorIs(t, err, ErrRoomFailed)

	v := env.view(t, id)
	assert.Equal(t, StatusFinished, v.Status)
	assert.Zero(t, env.clock.pending())
}

func TestRoomsRunInParallel(t *testing.T) {
	env := newTestEnv(t)
	env.ids.ids = nil
	// Rooms share the word source, so every room must be dealt the same word.
	env.words.words = []string{"cat"}

	const rooms = 16

	var wg sync.WaitGroup
	for i := range rooms {
		wg.Add(1)
		go func() {
			defer wg.Done()

			host, err := env.c.Connect(fmt.Sprintf("host-%d", i))
			if !assert.NoError(t, err) {
				return
			}
			guest, err := env.c.Connect(fmt.Sprintf("guest-%d", i))
			if !assert.NoError(t, err) {
				return
			}

			id, err := env.c.CreateRoom(host.ID)
			if !assert.NoError(t, err) {
				return
			}
			_, err = env.c.JoinRoom(id, guest.ID)
			assert.NoError(t, err)

			assert.NoError(t, env.c.StartGame(id, host.ID))
			for j := range 20 {
				_, err := env.c.SubmitStroke(id, host.ID, dot(float64(j), 0))
				assert.NoError(t, err)
			}

			res, err := env.c.SubmitGuess(id, guest.ID, "cat")
			assert.NoError(t, err)
			assert.Equal(t, GuessCorrect, res.Outcome)
		}()
	}
	wg.Wait()

	views := env.c.ListRooms()
	require.Len(t, views, rooms)
	for _, v := range views {
		assert.Equal(t, StatusPlaying, v.Status)
		assert.Equal(t, v.Members[1].ID, v.DrawerID)
	}
}

func TestCloseNotifiesEveryRoom(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice")

	sub, err := env.c.Subscribe(id, players[0].ID)
	require.NoError(t, err)

	env.c.Close()

	events := drain(sub)
	require.NotEmpty(t, events)
	assert.Equal(t, EventRoomClosed, events[len(events)-1].Type)
	assert.Equal(t, ReasonShutdown, events[len(events)-1].Reason)
	assert.Empty(t, env.c.ListRooms())

	_, err = env.c.CreateRoom(players[0].ID)
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRunClosesOnCancel(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.SweepInterval = time.Millisecond })
	env.room(t, "Alice")

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.c.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Empty(t, env.c.ListRooms())
}

func TestRunSweepsOnEachTick(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice")
	require.NoError(t, env.c.Disconnect(players[0].ID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go env.c.Run(ctx)

	require.Eventually(t, func() bool { return env.clock.running() == 1 }, 5*time.Second, time.Millisecond)

	_, ok := env.c.GetRoom(id)
	assert.True(t, ok, "nothing is swept before the clock moves")

	require.Eventually(t, func() bool {
		env.clock.Advance(env.c.Options().SweepInterval)
		_, ok := env.c.GetRoom(id)

		return !ok
	}, 5*time.Second, time.Millisecond)

	assert.Greater(t, env.clock.Now().Sub(epoch), env.c.Options().IdleGrace)
}

func TestCode(t *testing.T) {
	tests := map[error]string{
		nil:                    "",
		ErrRoomNotFound:        "room_not_found",
		ErrRoomFull:            "room_full",
		ErrAlreadyPlaying:      "already_playing",
		ErrNotHost:             "not_host",
		ErrNotCurrentDrawer:    "not_current_drawer",
		ErrRoomNotPlaying:      "room_not_playing",
		ErrInsufficientPlayers: "insufficient_players",
		ErrInvalidStroke:       "invalid_stroke",
		errors.New("boom"):     "internal",
	}

	for err, want := range tests {
		assert.Equal(t, want, Code(err))
	}

	assert.Equal(t, "invalid_stroke", Code(fmt.Errorf("%w: width 0", ErrInvalidStroke)))
}
