/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"errors"
	"fmt"
	"time"
)

func requireHostLocked(r *room, requester string) error {
	if m, _ := r.memberLocked(requester); m == nil {
		return ErrNotMember
	}
	if r.hostID != requester {
		return ErrNotHost
	}

	return nil
}

func (c *Coordinator) nextWord() (string, error) {
	w, err := c.words.NextWord()
	if err != nil {
		if errors.Is(err, ErrNoWords) {
			return "", err
		}

		return "", fmt.Errorf("%w: %v", ErrNoWords, err)
	}

	return w, nil
}

// StartGame moves a waiting or finished room into play with the host as
// the first drawer. Scores from any earlier game are cleared.
func (c *Coordinator) StartGame(roomID, requester string) error {
	return c.withRoom(roomID, func(r *room, now time.Time) error {
		if err := requireHostLocked(r, requester); err != nil {
			return err
		}

		if r.status == StatusPlaying {
			return ErrAlreadyPlaying
		}

		if r.connectedLocked() < 2 {
			return ErrInsufficientPlayers
		}

		word, err := c.nextWord()
		if err != nil {
			return err
		}

		for _, m := range r.members {
			m.score = 0
			m.spectator = false
		}

		r.status = StatusPlaying
		r.round = 1
		r.touchLocked(now)

		_, first := r.memberLocked(r.hostID)
		if !r.members[first].connected {
			first, _ = r.nextDrawerLocked(first)
		}

		c.startTurnLocked(r, now, first, word, ReasonStart, "")

		c.logf("GAMES: Started game in room %s with %d players", r.id, len(r.members))

		return nil
	})
}

// AdvanceTurn ends the current turn and hands the canvas to the next
// drawer. It is what the turn timer calls when it fires.
func (c *Coordinator) AdvanceTurn(roomID string) error {
	return c.withRoom(roomID, func(r *room, now time.Time) error {
		if r.status != StatusPlaying {
			return ErrRoomNotPlaying
		}

		c.advanceLocked(r, now, ReasonAdvanced)

		return nil
	})
}

// SkipTurn lets the host move on from a turn nobody can guess.
func (c *Coordinator) SkipTurn(roomID, requester string) error {
	return c.withRoom(roomID, func(r *room, now time.Time) error {
		if err := requireHostLocked(r, requester); err != nil {
			return err
		}

		if r.status != StatusPlaying {
			return ErrRoomNotPlaying
		}

		r.touchLocked(now)
		c.advanceLocked(r, now, ReasonSkipped)

		return nil
	})
}

// PauseGame stops the turn clock, keeping the time left.
func (c *Coordinator) PauseGame(roomID, requester string) error {
	return c.withRoom(roomID, func(r *room, now time.Time) error {
		if err := requireHostLocked(r, requester); err != nil {
			return err
		}

		if r.status != StatusPlaying {
			return ErrRoomNotPlaying
		}

		if r.paused {
			return ErrGamePaused
		}

		r.remaining = r.remainingLocked(now)
		r.stopTimerLocked()
		r.turnToken++
		r.paused = true
		r.touchLocked(now)

		r.publishStateLocked(now, ReasonPaused)

		return nil
	})
}

// ResumeGame restarts the turn clock from where PauseGame left it.
func (c *Coordinator) ResumeGame(roomID, requester string) error {
	return c.withRoom(roomID, func(r *room, now time.Time) error {
		if err := requireHostLocked(r, requester); err != nil {
			return err
		}

		if r.status != StatusPlaying {
			return ErrRoomNotPlaying
		}

		if !r.paused {
			return ErrNotPaused
		}

		r.paused = false
		c.armTimerLocked(r, now, r.remaining)
		r.remaining = 0
		r.touchLocked(now)

		r.publishStateLocked(now, ReasonResumed)

		return nil
	})
}

// EndGame finishes the game from any state.
func (c *Coordinator) EndGame(roomID, requester string) error {
	return c.withRoom(roomID, func(r *room, now time.Time) error {
		if err := requireHostLocked(r, requester); err != nil {
			return err
		}

		r.touchLocked(now)
		c.finishLocked(r, now, ReasonEndedByHost, r.word)

		return nil
	})
}

func (c *Coordinator) armTimerLocked(r *room, now time.Time, d time.Duration) {
	r.stopTimerLocked()
	r.turnToken++

	id, token := r.id, r.turnToken

	r.turnEndsAt = now.Add(d)
	r.timer = c.clock.AfterFunc(d, func() {
		c.turnExpired(id, token)
	})
}

// turnExpired runs on the timer goroutine. Timers belonging to a turn that
// has already ended carry a stale token and do nothing.
func (c *Coordinator) turnExpired(id string, token uint64) {
	_ = c.withRoom(id, func(r *room, now time.Time) error {
		if r.turnToken != token || r.status != StatusPlaying || r.paused {
			return nil
		}

		r.timer = nil
		c.advanceLocked(r, now, ReasonTimeout)

		return nil
	})
}

func (c *Coordinator) startTurnLocked(r *room, now time.Time, idx int, word, reason, previous string) {
	r.drawerIdx = idx
	r.drawerID = r.members[idx].id
	r.word = word
	r.paused = false
	r.remaining = 0
	r.drawerAward = 0
	r.guessed = 0
	clear(r.scored)
	r.strokes.reset()

	c.armTimerLocked(r, now, c.opts.TurnDuration)

	r.publishLocked(Event{
		Type:   EventTurnAdvanced,
		Reason: reason,
		Turn: &TurnInfo{
			DrawerID:     r.drawerID,
			Round:        r.round,
			MaxRounds:    r.maxRounds,
			Hint:         maskWord(word),
			EndsAt:       r.turnEndsAt,
			PreviousWord: previous,
		},
	})
	r.publishLocked(Event{Type: EventSecretWord, Word: word, to: r.drawerID})
	r.publishStateLocked(now, reason)
}

// advanceLocked rotates the drawer in join order. Wrapping past the last
// member ends the round; ending the last round finishes the game.
func (c *Coordinator) advanceLocked(r *room, now time.Time, reason string) {
	if r.status != StatusPlaying {
		return
	}

	previous := r.word
	r.stopTimerLocked()

	if r.eligibleLocked() < 2 {
		c.toWaitingLocked(r, now, ReasonNotEnoughPlayers)

		return
	}

	next, wrapped := r.nextDrawerLocked(r.drawerIdx)
	if next < 0 {
		c.toWaitingLocked(r, now, ReasonNotEnoughPlayers)

		return
	}

	if wrapped {
		r.publishLocked(Event{
			Type: EventRoundEnded,
			Turn: &TurnInfo{
				Round:        r.round,
				MaxRounds:    r.maxRounds,
				PreviousWord: previous,
			},
			Standings: r.standingsLocked(),
		})

		if r.round >= r.maxRounds {
			c.finishLocked(r, now, ReasonRoundsComplete, previous)

			return
		}

		r.round++
	}

	word, err := c.nextWord()
	if err != nil {
		c.logf("GAMES: Room %s ran out of words: %v", r.id, err)
		c.finishLocked(r, now, ReasonNoWords, previous)

		return
	}

	c.startTurnLocked(r, now, next, word, reason, previous)
}

func (c *Coordinator) clearTurnLocked(r *room) {
	r.stopTimerLocked()
	r.turnToken++

	r.paused = false
	r.remaining = 0
	r.drawerID = ""
	r.drawerIdx = -1
	r.word = ""
	r.drawerAward = 0
	r.guessed = 0
	clear(r.scored)
	r.strokes.reset()
}

func (c *Coordinator) toWaitingLocked(r *room, now time.Time, reason string) {
	c.clearTurnLocked(r)

	r.status = StatusWaiting
	r.round = 0

	r.publishStateLocked(now, reason)

	c.logf("GAMES: Room %s is waiting for players (%s)", r.id, reason)
}

func (c *Coordinator) finishLocked(r *room, now time.Time, reason, previous string) {
	c.clearTurnLocked(r)

	r.status = StatusFinished

	r.publishLocked(Event{
		Type:      EventGameOver,
		Reason:    reason,
		Standings: r.standingsLocked(),
		Turn: &TurnInfo{
			Round:        r.round,
			MaxRounds:    r.maxRounds,
			PreviousWord: previous,
		},
	})
	r.publishStateLocked(now, reason)

	c.logf("GAMES: Game in room %s finished (%s)", r.id, reason)
}
