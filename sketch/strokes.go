/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"fmt"
	"math"
	"time"
)

type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

const (
	maxSegmentPoints = 1024
	maxStrokeWidth   = 200
	maxColorLength   = 32
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is one piece of a stroke as sent by the drawer.
type Segment struct {
	Points []Point `json:"points"`
	Tool   Tool    `json:"tool"`
	Color  string  `json:"color,omitempty"`
	Width  float64 `json:"width"`
}

func (s Segment) validate() error {
	switch {
	case len(s.Points) == 0:
		return fmt.Errorf("%w: no points", ErrInvalidStroke)
	case len(s.Points) > maxSegmentPoints:
		return fmt.Errorf("%w: more than %d points", ErrInvalidStroke, maxSegmentPoints)
	case s.Tool != ToolBrush && s.Tool != ToolEraser:
		return fmt.Errorf("%w: unknown tool %q", ErrInvalidStroke, s.Tool)
	case !(s.Width > 0 && s.Width <= maxStrokeWidth):
		return fmt.Errorf("%w: width %v", ErrInvalidStroke, s.Width)
	case len(s.Color) > maxColorLength:
		return fmt.Errorf("%w: color too long", ErrInvalidStroke)
	}

	for _, p := range s.Points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: point out of range", ErrInvalidStroke)
		}
	}

	return nil
}

// StrokeEvent is an accepted segment. Seq counts strokes in the room and
// never goes backwards, even across turns.
type StrokeEvent struct {
	Room     string `json:"room"`
	Seq      uint64 `json:"seq"`
	PlayerID string `json:"player_id"`
	Segment
}

// strokeLog keeps the most recent events of the current canvas, oldest
// first, dropping the oldest once full.
type strokeLog struct {
	size  int
	buf   []Event
	start int
}

func newStrokeLog(size int) *strokeLog {
	return &strokeLog{size: size}
}

func (l *strokeLog) push(ev Event) {
	if len(l.buf) < l.size {
		l.buf = append(l.buf, ev)

		return
	}

	l.buf[l.start] = ev
	l.start = (l.start + 1) % l.size
}

func (l *strokeLog) events() []Event {
	out := make([]Event, 0, len(l.buf))
	out = append(out, l.buf[l.start:]...)
	out = append(out, l.buf[:l.start]...)

	return out
}

func (l *strokeLog) len() int {
	return len(l.buf)
}

func (l *strokeLog) reset() {
	l.buf = nil
	l.start = 0
}

// SubmitStroke relays a segment from the current drawer to the whole room
// and records it for players who subscribe later.
func (c *Coordinator) SubmitStroke(roomID, playerID string, seg Segment) (StrokeEvent, error) {
	var se StrokeEvent

	err := c.withRoom(roomID, func(r *room, now time.Time) error {
		if r.status != StatusPlaying {
			return ErrRoomNotPlaying
		}

		if playerID != r.drawerID {
			return ErrNotCurrentDrawer
		}

		if r.paused {
			return ErrGamePaused
		}

		if seg.Tool == "" {
			seg.Tool = ToolBrush
		}

		if err := seg.validate(); err != nil {
			return err
		}

		r.strokeSeq++
		r.touchLocked(now)

		se = StrokeEvent{
			Room:     r.id,
			Seq:      r.strokeSeq,
			PlayerID: playerID,
			Segment:  seg,
		}

		stroke := se
		ev := r.publishLocked(Event{Type: EventStroke, Stroke: &stroke})
		r.strokes.push(ev)

		return nil
	})

	return se, err
}

// ClearCanvas wipes the drawer's canvas for everyone.
func (c *Coordinator) ClearCanvas(roomID, playerID string) error {
	return c.withRoom(roomID, func(r *room, now time.Time) error {
		if r.status != StatusPlaying {
			return ErrRoomNotPlaying
		}

		if playerID != r.drawerID {
			return ErrNotCurrentDrawer
		}

		r.strokes.reset()
		r.touchLocked(now)

		r.publishLocked(Event{Type: EventCanvasCleared})

		return nil
	})
}

// Subscribe attaches playerID to the room's event stream. The current
// canvas is replayed first, followed by a private room_state and, for the
// drawer, the secret word. A newer subscription for the same player
// replaces the older one.
func (c *Coordinator) Subscribe(roomID, playerID string) (*Subscription, error) {
	var sub *Subscription

	err := c.withRoom(roomID, func(r *room, now time.Time) error {
		if m, _ := r.memberLocked(playerID); m == nil {
			return ErrNotMember
		}

		replay := r.strokes.events()

		r.dropSubLocked(playerID, ErrReplaced)

		sub = newSubscription(r.id, playerID, len(replay)+c.opts.SubscriberBuffer)
		for _, ev := range replay {
			sub.offer(ev)
		}
		r.subs[playerID] = sub

		v := r.viewLocked(now)
		r.publishLocked(Event{Type: EventRoomState, State: &v, to: playerID})

		if playerID == r.drawerID && r.word != "" {
			r.publishLocked(Event{Type: EventSecretWord, Word: r.word, to: playerID})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// Unsubscribe detaches sub. It is a no-op if sub was already replaced or closed.
func (c *Coordinator) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	_ = c.withRoom(sub.room, func(r *room, _ time.Time) error {
		if r.subs[sub.player] == sub {
			r.dropSubLocked(sub.player, nil)
		}

		return nil
	})
}
