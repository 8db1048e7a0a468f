/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"
)

type member struct {
	id             string
	name           string
	score          int
	connected      bool
	spectator      bool
	disconnectedAt time.Time
}

// room is guarded by mu. Every field below is read and written only while
// mu is held; the registry lock is never taken while mu is held.
type room struct {
	mu sync.Mutex

	id     string
	hostID string

	members    []*member
	status     Status
	round      int
	maxRounds  int
	drawerID   string
	drawerIdx  int
	word       string
	paused     bool
	remaining  time.Duration
	turnEndsAt time.Time
	turnToken  uint64
	timer      Timer

	// scored maps guessers who found the word this turn to their rank.
	// Entries outlive a member leaving so a rejoin cannot score twice.
	scored      map[string]int
	guessed     int
	drawerAward int

	strokeSeq uint64
	strokes   *strokeLog

	eventSeq uint64
	subs     map[string]*Subscription

	createdAt    time.Time
	lastActivity time.Time
	emptySince   time.Time
	closed       bool
}

func newRoom(id string, host Player, maxRounds, replaySize int, now time.Time) *room {
	return &room{
		id:           id,
		hostID:       host.ID,
		members:      []*member{{id: host.ID, name: host.Name, connected: true}},
		status:       StatusWaiting,
		maxRounds:    maxRounds,
		drawerIdx:    -1,
		scored:       make(map[string]int),
		strokes:      newStrokeLog(replaySize),
		subs:         make(map[string]*Subscription),
		createdAt:    now,
		lastActivity: now,
	}
}

func (r *room) memberLocked(id string) (*member, int) {
	for i, m := range r.members {
		if m.id == id {
			return m, i
		}
	}
	return nil, -1
}

func (r *room) connectedLocked() int {
	n := 0
	for _, m := range r.members {
		if m.connected {
			n++
		}
	}
	return n
}

// eligibleLocked counts connected members who may take a turn drawing.
func (r *room) eligibleLocked() int {
	n := 0
	for _, m := range r.members {
		if m.connected && !m.spectator {
			n++
		}
	}
	return n
}

// nextDrawerLocked finds the first connected non-spectator after position
// from in join order, and whether the search wrapped past the end.
func (r *room) nextDrawerLocked(from int) (int, bool) {
	n := len(r.members)
	for step := 1; step <= n; step++ {
		j := from + step
		k := ((j % n) + n) % n

		m := r.members[k]
		if m.connected && !m.spectator {
			return k, j >= n
		}
	}
	return -1, false
}

func (r *room) touchLocked(now time.Time) {
	r.lastActivity = now
}

func (r *room) remainingLocked(now time.Time) time.Duration {
	if r.paused {
		return r.remaining
	}
	return max(r.turnEndsAt.Sub(now), 0)
}

func (r *room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// publishLocked stamps ev with the next sequence number and queues it for
// every matching subscriber. Subscribers whose buffer is full are dropped
// so a slow connection never stalls the room.
func (r *room) publishLocked(ev Event) Event {
	r.eventSeq++
	ev.Seq = r.eventSeq
	ev.Room = r.id

	for id, sub := range r.subs {
		if ev.to != "" && ev.to != id {
			continue
		}
		if !sub.offer(ev) {
			r.dropSubLocked(id, ErrSlowSubscriber)
		}
	}

	return ev
}

func (r *room) publishStateLocked(now time.Time, reason string) {
	v := r.viewLocked(now)
	r.publishLocked(Event{Type: EventRoomState, State: &v, Reason: reason})
}

func (r *room) dropSubLocked(player string, err error) {
	sub, ok := r.subs[player]
	if !ok {
		return
	}
	delete(r.subs, player)
	sub.close(err)
}

func (r *room) viewLocked(now time.Time) RoomView {
	v := RoomView{
		ID:           r.id,
		HostID:       r.hostID,
		Status:       r.status,
		Paused:       r.paused,
		Round:        r.round,
		MaxRounds:    r.maxRounds,
		DrawerID:     r.drawerID,
		Members:      make([]MemberView, 0, len(r.members)),
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
	}

	if r.status == StatusPlaying {
		v.Hint = maskWord(r.word)
		v.SecondsLeft = int(math.Ceil(r.remainingLocked(now).Seconds()))
	}

	for _, m := range r.members {
		v.Members = append(v.Members, MemberView{
			ID:        m.id,
			Name:      m.name,
			Score:     m.score,
			Connected: m.connected,
			Spectator: m.spectator,
		})
	}

	return v
}

func (r *room) standingsLocked() []Standing {
	out := make([]Standing, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, Standing{PlayerID: m.id, Name: m.name, Score: m.score})
	}

	// Stable keeps join order among equal scores.
	slices.SortStableFunc(out, func(a, b Standing) int {
		return cmp.Compare(b.Score, a.Score)
	})

	for i := range out {
		out[i].Rank = i + 1
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		}
	}

	return out
}

// checkLocked reports a broken room invariant.
func (r *room) checkLocked() error {
	if r.drawerID != "" {
		if m, _ := r.memberLocked(r.drawerID); m == nil {
			return fmt.Errorf("drawer %s is not a member of room %s", r.drawerID, r.id)
		}
	}
	if r.round > r.maxRounds {
		return fmt.Errorf("room %s is on round %d of %d", r.id, r.round, r.maxRounds)
	}
	if r.status == StatusPlaying && r.drawerID == "" {
		return fmt.Errorf("room %s is playing without a drawer", r.id)
	}
	for _, m := range r.members {
		if m.score < 0 {
			return fmt.Errorf("player %s has negative score %d", m.id, m.score)
		}
	}
	return nil
}

// maskWord turns "fire truck" into "_ _ _ _   _ _ _ _ _".
func maskWord(w string) string {
	if w == "" {
		return ""
	}

	var b strings.Builder
	for i, c := range []rune(w) {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch {
		case unicode.IsSpace(c):
			b.WriteByte(' ')
		case unicode.IsLetter(c) || unicode.IsDigit(c):
			b.WriteByte('_')
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
