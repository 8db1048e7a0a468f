/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import "time"

type EventType string

const (
	EventRoomState     EventType = "room_state"
	EventStroke        EventType = "stroke"
	EventCanvasCleared EventType = "canvas_cleared"
	EventGuessResult   EventType = "guess_result"
	EventCloseGuess    EventType = "close_guess"
	EventTurnAdvanced  EventType = "turn_advanced"
	EventSecretWord    EventType = "secret_word"
	EventRoundEnded    EventType = "round_ended"
	EventGameOver      EventType = "game_over"
	EventRoomClosed    EventType = "room_closed"
)

// Event is one outbound notification. Seq increases strictly across every
// event a room emits, so all members observe the same relative order.
type Event struct {
	Type      EventType    `json:"type"`
	Room      string       `json:"room"`
	Seq       uint64       `json:"seq"`
	State     *RoomView    `json:"state,omitempty"`
	Stroke    *StrokeEvent `json:"stroke,omitempty"`
	Guess     *GuessResult `json:"guess,omitempty"`
	Turn      *TurnInfo    `json:"turn,omitempty"`
	Word      string       `json:"word,omitempty"`
	Standings []Standing   `json:"standings,omitempty"`
	Reason    string       `json:"reason,omitempty"`

	to string // deliver only to this player
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Reasons attached to turn, state and close events.
const (
	ReasonStart              = "start"
	ReasonGuessed            = "guessed"
	ReasonTimeout            = "timeout"
	ReasonSkipped            = "skipped"
	ReasonAdvanced           = "advanced"
	ReasonDrawerDisconnected = "drawer_disconnected"
	ReasonDrawerLeft         = "drawer_left"
	ReasonNotEnoughPlayers   = "not_enough_players"
	ReasonRoundsComplete     = "rounds_complete"
	ReasonEndedByHost        = "ended_by_host"
	ReasonPaused             = "paused"
	ReasonResumed            = "resumed"
	ReasonJoined             = "joined"
	ReasonLeft               = "left"
	ReasonDisconnected       = "disconnected"
	ReasonNoWords            = "no_words"
	ReasonInternalError      = "internal_error"
	ReasonEmpty              = "empty"
	ReasonIdle               = "idle"
	ReasonShutdown           = "shutdown"
)

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MemberView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
	Spectator bool   `json:"spectator,omitempty"`
}

// RoomView is a copy of a room's public state. It never carries the secret word.
type RoomView struct {
	ID           string       `json:"id"`
	HostID       string       `json:"host_id"`
	Status       Status       `json:"status"`
	Paused       bool         `json:"paused,omitempty"`
	Round        int          `json:"round"`
	MaxRounds    int          `json:"max_rounds"`
	DrawerID     string       `json:"drawer_id,omitempty"`
	Hint         string       `json:"hint,omitempty"`
	SecondsLeft  int          `json:"seconds_left,omitempty"`
	Members      []MemberView `json:"members"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
}

// Member returns the member with the given id, if present.
func (v RoomView) Member(id string) (MemberView, bool) {
	for _, m := range v.Members {
		if m.ID == id {
			return m, true
		}
	}
	return MemberView{}, false
}

type TurnInfo struct {
	DrawerID     string    `json:"drawer_id"`
	Round        int       `json:"round"`
	MaxRounds    int       `json:"max_rounds"`
	Hint         string    `json:"hint"`
	EndsAt       time.Time `json:"ends_at"`
	PreviousWord string    `json:"previous_word,omitempty"`
}

type Standing struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// MemberAck is returned to a player that joined or rejoined a room.
type MemberAck struct {
	Room      RoomView `json:"room"`
	Rejoined  bool     `json:"rejoined,omitempty"`
	Spectator bool     `json:"spectator,omitempty"`
}

// Subscription delivers a room's events to one player. C is closed when the
// subscription ends; Err then reports why.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	room   string
	player string
	err    error
}

func newSubscription(room, player string, size int) *Subscription {
	ch := make(chan Event, size)
	return &Subscription{C: ch, ch: ch, room: room, player: player}
}

func (s *Subscription) Room() string { return s.room }

func (s *Subscription) Player() string { return s.player }

// Err is only meaningful once C has been closed. It is nil when the player
// left or unsubscribed.
func (s *Subscription) Err() error { return s.err }

// offer never blocks; a full buffer means the reader is too slow.
func (s *Subscription) offer(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) close(err error) {
	s.err = err
	close(s.ch)
}
