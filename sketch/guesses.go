/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"math/bits"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

type GuessOutcome string

const (
	GuessCorrect       GuessOutcome = "correct"
	GuessIncorrect     GuessOutcome = "incorrect"
	GuessAlreadyScored GuessOutcome = "already_scored"
	GuessNotEligible   GuessOutcome = "not_eligible"
)

// GuessResult is returned to the guesser and, for correct and incorrect
// guesses, relayed to the room. Text is only set on incorrect guesses,
// which double as chat.
type GuessResult struct {
	PlayerID   string       `json:"player_id"`
	Name       string       `json:"name"`
	Outcome    GuessOutcome `json:"outcome"`
	ScoreDelta int          `json:"score_delta"`
	Rank       int          `json:"rank,omitempty"`
	Text       string       `json:"text,omitempty"`
}

func normalizeGuess(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// guessPoints is ceil(base * remaining/total / rank), never less than one.
// The product is taken in 128 bits since durations are in nanoseconds.
func guessPoints(base int, remaining, total time.Duration, rank int) int {
	if total <= 0 || rank <= 0 || base <= 0 {
		return 1
	}

	remaining = min(max(remaining, 0), total)

	// remaining <= total keeps the quotient within base, so Div64 cannot overflow.
	hi, lo := bits.Mul64(uint64(base), uint64(remaining))
	q, rem := bits.Div64(hi, lo, uint64(total))
	if rem > 0 {
		q++
	}

	// ceil(ceil(x)/k) == ceil(x/k) for integer k.
	points := (q + uint64(rank) - 1) / uint64(rank)

	return max(int(points), 1)
}

// SubmitGuess checks text against the secret word. Scores change inside
// the room's critical section, so concurrent guesses never lose updates.
func (c *Coordinator) SubmitGuess(roomID, playerID, text string) (GuessResult, error) {
	var res GuessResult

	err := c.withRoom(roomID, func(r *room, now time.Time) error {
		m, _ := r.memberLocked(playerID)
		if m == nil {
			return ErrNotMember
		}

		res = GuessResult{PlayerID: m.id, Name: m.name}
		r.touchLocked(now)

		if r.status != StatusPlaying || r.paused || playerID == r.drawerID {
			res.Outcome = GuessNotEligible

			return nil
		}

		if _, ok := r.scored[playerID]; ok {
			res.Outcome = GuessAlreadyScored

			return nil
		}

		guess := normalizeGuess(text)
		if guess == "" {
			res.Outcome = GuessIncorrect

			return nil
		}

		distance := levenshtein.ComputeDistance(guess, normalizeGuess(r.word))

		if distance > c.opts.MatchDistance {
			res.Outcome = GuessIncorrect
			res.Text = strings.TrimSpace(text)

			chat := res
			r.publishLocked(Event{Type: EventGuessResult, Guess: &chat})

			if distance <= c.opts.CloseDistance {
				hint := res
				r.publishLocked(Event{Type: EventCloseGuess, Guess: &hint, to: playerID})
			}

			return nil
		}

		r.guessed++
		rank := r.guessed
		r.scored[playerID] = rank

		points := guessPoints(c.opts.BasePoints, r.remainingLocked(now), c.opts.TurnDuration, rank)
		m.score += points

		res.Outcome = GuessCorrect
		res.ScoreDelta = points
		res.Rank = rank

		correct := res
		r.publishLocked(Event{Type: EventGuessResult, Guess: &correct})

		if rank == 1 && c.opts.DrawerBonus > 0 {
			if drawer, _ := r.memberLocked(r.drawerID); drawer != nil {
				drawer.score += c.opts.DrawerBonus
				r.drawerAward = c.opts.DrawerBonus
			}
		}

		if c.opts.Advance == AdvanceOnFirst || r.allGuessedLocked() {
			c.advanceLocked(r, now, ReasonGuessed)

			return nil
		}

		r.publishStateLocked(now, ReasonGuessed)

		return nil
	})

	return res, err
}

// allGuessedLocked reports whether every connected guesser has scored this turn.
func (r *room) allGuessedLocked() bool {
	if len(r.scored) == 0 {
		return false
	}

	for _, m := range r.members {
		if !m.connected || m.id == r.drawerID {
			continue
		}
		if _, ok := r.scored[m.id]; !ok {
			return false
		}
	}

	return true
}
