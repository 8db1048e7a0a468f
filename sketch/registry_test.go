/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoomRegeneratesOnCollision(t *testing.T) {
	env := newTestEnv(t)
	env.ids.ids = []string{"AAAAAA", "AAAAAA", "short", "BBBBBB"}

	alice := env.connect(t, "Alice")
	bob := env.connect(t, "Bob")

	first, err := env.c.CreateRoom(alice.ID)
	require.NoError(t, err)
	second, err := env.c.CreateRoom(bob.ID)
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", first)
	assert.Equal(t, "BBBBBB", second)

	v := env.view(t, first)
	assert.Equal(t, alice.ID, v.HostID)
	assert.Equal(t, StatusWaiting, v.Status)
	assert.Equal(t, 3, v.MaxRounds)
	require.Len(t, v.Members, 1)
}

func TestCreateRoomUnknownPlayer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.c.CreateRoom("nobody")
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestRandomRoomIDs(t *testing.T) {
	seen := make(map[string]bool)

	for range 500 {
		id := RandomRoomIDs{}.RoomID()
		require.Len(t, id, RoomIDLength)
		for _, r := range id {
			assert.Contains(t, roomIDAlphabet, string(r))
		}
		seen[id] = true
	}

	assert.Greater(t, len(seen), 495)
}

func TestConnectValidatesName(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.c.Connect("   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = env.c.Connect("this name is far too long to be shown anywhere")
	assert.ErrorIs(t, err, ErrInvalidName)

	a := env.connect(t, "Sam")
	b := env.connect(t, "Sam")
	assert.NotEqual(t, a.ID, b.ID, "players sharing a name get distinct ids")
}

func TestJoinRoomErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.connect(t, "Alice")

		_, err := env.c.JoinRoom("ZZZZZZ", p.ID)
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("full", func(t *testing.T) {
		env := newTestEnv(t, func(o *Options) { o.MaxPlayers = 2 })
		id, _ := env.room(t, "Alice", "Bob")

		carol := env.connect(t, "Carol")
		_, err := env.c.JoinRoom(id, carol.ID)
		assert.ErrorIs(t, err, ErrRoomFull)
	})

	t.Run("already playing", func(t *testing.T) {
		env := newTestEnv(t, func(o *Options) { o.AllowLateJoin = false })
		id, players := env.room(t, "Alice", "Bob")
		require.NoError(t, env.c.StartGame(id, players[0].ID))

		carol := env.connect(t, "Carol")
		_, err := env.c.JoinRoom(id, carol.ID)
		assert.ErrorIs(t, err, ErrAlreadyPlaying)
	})

	t.Run("unknown player", func(t *testing.T) {
		env := newTestEnv(t)
		id, _ := env.room(t, "Alice")

		_, err := env.c.JoinRoom(id, "nobody")
		assert.ErrorIs(t, err, ErrUnknownPlayer)
	})
}

func TestJoinRoomCaseInsensitiveCode(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.room(t, "Alice")

	bob := env.connect(t, "Bob")
	ack, err := env.c.JoinRoom("abc123", bob.ID)
	require.NoError(t, err)

	assert.Equal(t, id, ack.Room.ID)
	assert.Len(t, ack.Room.Members, 2)
}

func TestLateJoinerIsSpectator(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice", "Bob")
	require.NoError(t, env.c.StartGame(id, players[0].ID))

	carol := env.connect(t, "Carol")
	ack, err := env.c.JoinRoom(id, carol.ID)
	require.NoError(t, err)
	assert.True(t, ack.Spectator)

	// Spectators guess but never draw.
	res, err := env.c.SubmitGuess(id, carol.ID, "cat")
	require.NoError(t, err)
	assert.Equal(t, GuessCorrect, res.Outcome)

	v := env.view(t, id)
	assert.Equal(t, players[1].ID, v.DrawerID)

	require.NoError(t, env.c.AdvanceTurn(id))
	v = env.view(t, id)
	assert.Equal(t, players[0].ID, v.DrawerID, "rotation skips the spectator")
	assert.Equal(t, 2, v.Round)
}

func TestRejoinDoesNotCountAgainstCap(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.MaxPlayers = 2 })
	id, players := env.room(t, "Alice", "Bob")

	require.NoError(t, env.c.Disconnect(players[1].ID))
	m, _ := env.view(t, id).Member(players[1].ID)
	assert.False(t, m.Connected)

	ack, err := env.c.JoinRoom(id, players[1].ID)
	require.NoError(t, err)
	assert.True(t, ack.Rejoined)

	m, _ = ack.Room.Member(players[1].ID)
	assert.True(t, m.Connected)
	assert.Len(t, ack.Room.Members, 2)
}

func TestJoiningAnotherRoomLeavesTheFirst(t *testing.T) {
	env := newTestEnv(t)
	env.ids.ids = []string{"ROOM01", "ROOM02"}

	first, players := env.room(t, "Alice", "Bob")
	carol := env.connect(t, "Carol")
	second, err := env.c.CreateRoom(carol.ID)
	require.NoError(t, err)

	_, err = env.c.JoinRoom(second, players[1].ID)
	require.NoError(t, err)

	_, ok := env.view(t, first).Member(players[1].ID)
	assert.False(t, ok)

	_, room, _ := env.c.Player(players[1].ID)
	assert.Equal(t, second, room)
}

func TestRejectedJoinKeepsCurrentSeat(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.MaxPlayers = 3
		o.AllowLateJoin = false
	})
	env.ids.ids = []string{"ROOM01", "ROOM02", "ROOM03"}

	home, players := env.room(t, "Alice", "Bob")
	bob := players[1]

	full, _ := env.room(t, "Carol", "Dave", "Erin")
	busy, busyPlayers := env.room(t, "Frank", "Gina")
	require.NoError(t, env.c.StartGame(busy, busyPlayers[0].ID))

	for target, want := range map[string]error{
		full:     ErrRoomFull,
		busy:     ErrAlreadyPlaying,
		"NOPE00": ErrRoomNotFound,
	} {
		_, err := env.c.JoinRoom(target, bob.ID)
		require.ErrorIs(t, err, want)

		_, room, _ := env.c.Player(bob.ID)
		assert.Equal(t, home, room, "after joining %s", target)

		m, ok := env.view(t, home).Member(bob.ID)
		require.True(t, ok, "after joining %s", target)
		assert.True(t, m.Connected)
	}

	assert.Len(t, env.view(t, full).Members, 3)
}

func TestLeaveRoomTransfersHost(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice", "Bob", "Carol")

	require.NoError(t, env.c.LeaveRoom(id, players[0].ID))

	v := env.view(t, id)
	assert.Equal(t, players[1].ID, v.HostID)
	assert.Len(t, v.Members, 2)

	assert.ErrorIs(t, env.c.LeaveRoom(id, players[0].ID), ErrNotMember)
}

func TestLeaveBelowTwoReturnsToWaiting(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice", "Bob")
	require.NoError(t, env.c.StartGame(id, players[0].ID))

	require.NoError(t, env.c.LeaveRoom(id, players[1].ID))

	v := env.view(t, id)
	assert.Equal(t, StatusWaiting, v.Status)
	assert.Empty(t, v.DrawerID)
	assert.Zero(t, env.clock.pending(), "turn timer is cancelled")
}

func TestSweepIdleAfterSixtyOneMinutes(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice", "Bob")

	alice, err := env.c.Subscribe(id, players[0].ID)
	require.NoError(t, err)
	bob, err := env.c.Subscribe(id, players[1].ID)
	require.NoError(t, err)

	env.clock.Advance(30 * time.Minute)
	assert.Empty(t, env.c.SweepIdle(env.clock.Now()))

	env.clock.Advance(31 * time.Minute)
	removed := env.c.SweepIdle(env.clock.Now())
	assert.Equal(t, []string{id}, removed)

	_, ok := env.c.GetRoom(id)
	assert.False(t, ok)

	for _, sub := range []*Subscription{alice, bob} {
		events := drain(sub)
		require.NotEmpty(t, events)

		last := events[len(events)-1]
		assert.Equal(t, EventRoomClosed, last.Type)
		assert.Equal(t, ReasonIdle, last.Reason)

		_, open := <-sub.C
		assert.False(t, open)
		assert.ErrorIs(t, sub.Err(), ErrRoomClosed)
	}

	_, room, ok := env.c.Player(players[0].ID)
	assert.True(t, ok)
	assert.Empty(t, room)
}

func TestActivityPostponesIdleSweep(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice", "Bob")

	env.clock.Advance(50 * time.Minute)
	_, err := env.c.SubmitGuess(id, players[1].ID, "hello")
	require.NoError(t, err)

	env.clock.Advance(50 * time.Minute)
	assert.Empty(t, env.c.SweepIdle(env.clock.Now()))
}

func TestSweepEmptyRoomAfterGrace(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice")

	require.NoError(t, env.c.Disconnect(players[0].ID))

	env.clock.Advance(time.Minute)
	assert.Empty(t, env.c.SweepIdle(env.clock.Now()))

	env.clock.Advance(90 * time.Second)
	assert.Equal(t, []string{id}, env.c.SweepIdle(env.clock.Now()))
}

func TestSweepEvictsAfterReconnectGrace(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice", "Bob", "Carol")

	require.NoError(t, env.c.Disconnect(players[2].ID))

	env.clock.Advance(20 * time.Second)
	env.c.SweepIdle(env.clock.Now())
	_, ok := env.view(t, id).Member(players[2].ID)
	assert.True(t, ok, "still within the reconnect grace")

	env.clock.Advance(20 * time.Second)
	env.c.SweepIdle(env.clock.Now())
	_, ok = env.view(t, id).Member(players[2].ID)
	assert.False(t, ok)

	_, _, known := env.c.Player(players[2].ID)
	assert.False(t, known, "disconnected player without a room is forgotten")
}

func TestListRooms(t *testing.T) {
	env := newTestEnv(t)
	env.ids.ids = []string{"ZZZ999", "AAA111"}

	env.room(t, "Alice")
	env.room(t, "Bob")

	views := env.c.ListRooms()
	require.Len(t, views, 2)
	assert.Equal(t, "AAA111", views[0].ID)
	assert.Equal(t, "ZZZ999", views[1].ID)
}

func TestResumeKeepsPlayerID(t *testing.T) {
	env := newTestEnv(t)
	id, players := env.room(t, "Alice", "Bob")

	require.NoError(t, env.c.Disconnect(players[1].ID))

	p, err := env.c.Resume(players[1].ID, "Bobby")
	require.NoError(t, err)
	assert.Equal(t, players[1].ID, p.ID)

	ack, err := env.c.JoinRoom(id, p.ID)
	require.NoError(t, err)
	assert.True(t, ack.Rejoined)

	m, _ := ack.Room.Member(p.ID)
	assert.Equal(t, "Bobby", m.Name)

	_, err = env.c.Resume("not-a-uuid", "Bob")
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}
