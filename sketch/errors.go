/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrAlreadyPlaying      = errors.New("a game is already in progress")
	ErrNotHost             = errors.New("only the host can do that")
	ErrNotCurrentDrawer    = errors.New("only the current drawer can draw")
	ErrRoomNotPlaying      = errors.New("no game is in progress")
	ErrInsufficientPlayers = errors.New("at least two connected players are needed")
	ErrNotMember           = errors.New("player is not in this room")
	ErrUnknownPlayer       = errors.New("unknown player")
	ErrInvalidName         = errors.New("display name must be 1-32 characters")
	ErrGamePaused          = errors.New("the game is paused")
	ErrNotPaused           = errors.New("the game is not paused")
	ErrInvalidStroke       = errors.New("invalid stroke")
	ErrNoWords             = errors.New("no words available")
	ErrRoomFailed          = errors.New("room stopped after an internal error")
	ErrRoomClosed          = errors.New("room closed")
	ErrSlowSubscriber      = errors.New("subscriber fell too far behind")
	ErrReplaced            = errors.New("subscription replaced by a newer one")
	ErrIDSpaceExhausted    = errors.New("unable to allocate a unique room id")
)

// Code maps an error returned by the Coordinator to a short wire identifier.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrAlreadyPlaying):
		return "already_playing"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrNotCurrentDrawer):
		return "not_current_drawer"
	case errors.Is(err, ErrRoomNotPlaying):
		return "room_not_playing"
	case errors.Is(err, ErrInsufficientPlayers):
		return "insufficient_players"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrGamePaused):
		return "game_paused"
	case errors.Is(err, ErrNotPaused):
		return "not_paused"
	case errors.Is(err, ErrInvalidStroke):
		return "invalid_stroke"
	case errors.Is(err, ErrNoWords):
		return "no_words"
	case errors.Is(err, ErrRoomFailed):
		return "room_failed"
	case errors.Is(err, ErrRoomClosed):
		return "room_closed"
	default:
		return "internal"
	}
}
