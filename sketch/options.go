/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"crypto/rand"
	"time"
)

// AdvancePolicy decides when a correct guess ends the turn.
type AdvancePolicy string

const (
	// AdvanceOnFirst ends the turn as soon as anyone guesses the word.
	AdvanceOnFirst AdvancePolicy = "first"
	// AdvanceWhenAllGuessed keeps the turn open until every eligible
	// guesser has scored or the turn timer runs out.
	AdvanceWhenAllGuessed AdvancePolicy = "all"
)

const (
	RoomIDLength   = 6
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomIDAttempts = 64
)

type Options struct {
	MaxPlayers     int
	MaxRounds      int
	TurnDuration   time.Duration
	IdleGrace      time.Duration
	IdleMax        time.Duration
	ReconnectGrace time.Duration
	SweepInterval  time.Duration

	BasePoints    int
	DrawerBonus   int
	MatchDistance int
	CloseDistance int

	AllowLateJoin bool
	Advance       AdvancePolicy

	ReplaySize       int
	SubscriberBuffer int

	Clock Clock
	IDs   IDGenerator
	Logf  func(format string, args ...any)
}

func DefaultOptions() Options {
	return Options{
		MaxPlayers:       8,
		MaxRounds:        3,
		TurnDuration:     80 * time.Second,
		IdleGrace:        2 * time.Minute,
		IdleMax:          time.Hour,
		ReconnectGrace:   30 * time.Second,
		SweepInterval:    15 * time.Second,
		BasePoints:       100,
		DrawerBonus:      20,
		CloseDistance:    2,
		AllowLateJoin:    true,
		Advance:          AdvanceOnFirst,
		ReplaySize:       2000,
		SubscriberBuffer: 256,
	}
}

// withDefaults fills every field that has no meaningful zero value.
func (o Options) withDefaults() Options {
	d := DefaultOptions()

	if o.MaxPlayers <= 0 {
		o.MaxPlayers = d.MaxPlayers
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = d.MaxRounds
	}
	if o.TurnDuration <= 0 {
		o.TurnDuration = d.TurnDuration
	}
	if o.IdleGrace <= 0 {
		o.IdleGrace = d.IdleGrace
	}
	if o.IdleMax <= 0 {
		o.IdleMax = d.IdleMax
	}
	if o.ReconnectGrace <= 0 {
		o.ReconnectGrace = d.ReconnectGrace
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.BasePoints <= 0 {
		o.BasePoints = d.BasePoints
	}
	if o.Advance != AdvanceWhenAllGuessed {
		o.Advance = AdvanceOnFirst
	}
	if o.ReplaySize <= 0 {
		o.ReplaySize = d.ReplaySize
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = d.SubscriberBuffer
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	if o.IDs == nil {
		o.IDs = RandomRoomIDs{}
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}

	return o
}

// Clock is the source of time for turn timers and idle sweeps.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	NewTicker(d time.Duration) Ticker
}

type Timer interface {
	Stop() bool
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

func (systemClock) NewTicker(d time.Duration) Ticker { return systemTicker{time.NewTicker(d)} }

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }

func (s systemTicker) Stop() { s.t.Stop() }

// IDGenerator proposes room codes. Uniqueness is enforced by the registry,
// which asks again on collision.
type IDGenerator interface {
	RoomID() string
}

// RandomRoomIDs draws codes of RoomIDLength uppercase alphanumerics from crypto/rand.
type RandomRoomIDs struct{}

func (RandomRoomIDs) RoomID() string {
	return randomRoomID(RoomIDLength)
}

func randomRoomID(n int) string {
	// Largest byte value that keeps the modulo unbiased.
	const max = byte(255 - (256 % len(roomIDAlphabet)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b > max {
				continue
			}
			out = append(out, roomIDAlphabet[int(b)%len(roomIDAlphabet)])
			if len(out) == n {
				return string(out)
			}
		}
	}

	return string(out)
}
