/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Drawbox websocket transport
//
// Each connection is one player. The transport turns JSON messages into
// Coordinator calls and forwards the player's room events back down the
// socket.
//
// Features:
// - GET /ws?name=<display name> upgrades to a websocket
// - Players get a signed reconnect token (cookie and welcome message);
//   presenting it again reclaims the same player id and seat
// - Guesses and strokes are rate limited per connection
// - Room state as JSON at /rooms and /rooms/:code
// - QR code for a room's invite link at /rooms/:code/qr, backed by go-qrcode

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"github.com/Seednode/drawbox/sketch"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
	guessBurst     = 5
	qrSize         = 320
)

// Messages coming from clients
type ClientMessage struct {
	Type   string          `json:"type"`             // see handle
	ID     string          `json:"id,omitempty"`     // echoed back in ack/error
	Room   string          `json:"room,omitempty"`   // join_room, or any room op
	Text   string          `json:"text,omitempty"`   // guess
	Stroke *sketch.Segment `json:"stroke,omitempty"` // stroke
}

// WelcomeMessage is sent once, right after the upgrade.
type WelcomeMessage struct {
	Type   string            `json:"type"` // "welcome"
	Player sketch.Player     `json:"player"`
	Token  string            `json:"token"`
	Seat   *sketch.MemberAck `json:"seat,omitempty"` // set when a seat was reclaimed
}

// AckMessage confirms a request. Successful strokes are not acked; the
// stroke event itself comes back through the room stream.
type AckMessage struct {
	Type  string              `json:"type"` // "ack"
	ID    string              `json:"id,omitempty"`
	Op    string              `json:"op"`
	Room  string              `json:"room,omitempty"`
	Join  *sketch.MemberAck   `json:"join,omitempty"`
	Guess *sketch.GuessResult `json:"guess,omitempty"`
}

// ErrorMessage is sent only to the client whose request failed.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	ID      string `json:"id,omitempty"`
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	errRateLimited = errors.New("slow down")
	errNoRoom      = errors.New("not in a room")
	errBadRequest  = errors.New("malformed message")
	errUnknownType = errors.New("unknown message type")
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	case errors.Is(err, errNoRoom):
		return "no_room"
	case errors.Is(err, errBadRequest):
		return "bad_request"
	case errors.Is(err, errUnknownType):
		return "unknown_type"
	default:
		return sketch.Code(err)
	}
}

type Client struct {
	cfg    *Config
	coord  *sketch.Coordinator
	conn   *websocket.Conn
	player sketch.Player

	send chan any
	done chan struct{}

	guesses *rate.Limiter
	strokes *rate.Limiter

	mu         sync.Mutex
	sub        *sketch.Subscription
	forwarders sync.WaitGroup
	replaced   atomic.Bool
}

func newClient(cfg *Config, coord *sketch.Coordinator, conn *websocket.Conn, player sketch.Player) *Client {
	return &Client{
		cfg:     cfg,
		coord:   coord,
		conn:    conn,
		player:  player,
		send:    make(chan any, sendBuffer),
		done:    make(chan struct{}),
		guesses: rate.NewLimiter(rate.Limit(cfg.guessRate), guessBurst),
		strokes: rate.NewLimiter(rate.Limit(cfg.strokeRate), max(int(cfg.strokeRate*2), 1)),
	}
}

// reply queues a message for this client only. It is called from the read
// loop, which is also the only goroutine that closes send.
func (c *Client) reply(msg any) {
	select {
	case c.send <- msg:
	default:
		logf(c.cfg, "GAMES: Dropping slow connection for player %s", c.player.ID)
		_ = c.conn.Close()
	}
}

func (c *Client) fail(msg ClientMessage, err error) {
	c.reply(ErrorMessage{
		Type:    "error",
		ID:      msg.ID,
		Op:      msg.Type,
		Code:    errorCode(err),
		Message: err.Error(),
	})
}

func (c *Client) ack(msg ClientMessage, room string) AckMessage {
	return AckMessage{Type: "ack", ID: msg.ID, Op: msg.Type, Room: room}
}

// subscribe points the client's event stream at roomID, dropping any
// earlier stream first.
func (c *Client) subscribe(roomID string) error {
	c.unsubscribe()

	sub, err := c.coord.Subscribe(roomID, c.player.ID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	c.forwarders.Add(1)
	go c.forward(sub)

	return nil
}

func (c *Client) unsubscribe() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	c.coord.Unsubscribe(sub)
}

func (c *Client) forward(sub *sketch.Subscription) {
	defer c.forwarders.Done()

	for ev := range sub.C {
		select {
		case c.send <- ev:
		case <-c.done:
			return
		}
	}

	switch err := sub.Err(); {
	case errors.Is(err, sketch.ErrReplaced):
		// Another connection now speaks for this player.
		c.replaced.Store(true)
		logf(c.cfg, "GAMES: Player %s reconnected elsewhere", c.player.ID)
		_ = c.conn.Close()
	case errors.Is(err, sketch.ErrSlowSubscriber):
		logf(c.cfg, "GAMES: Player %s fell behind in room %s", c.player.ID, sub.Room())
		_ = c.conn.Close()
	}
}

// currentRoom is the room named in the message, or the one the player sits in.
func (c *Client) currentRoom(msg ClientMessage) (string, error) {
	if msg.Room != "" {
		return strings.ToUpper(msg.Room), nil
	}

	if _, room, ok := c.coord.Player(c.player.ID); ok && room != "" {
		return room, nil
	}

	return "", errNoRoom
}

func (c *Client) handle(msg ClientMessage) {
	pid := c.player.ID

	switch msg.Type {
	case "create_room":
		id, err := c.coord.CreateRoom(pid)
		if err != nil {
			c.fail(msg, err)

			return
		}

		if err := c.subscribe(id); err != nil {
			c.fail(msg, err)

			return
		}

		ack := c.ack(msg, id)
		if v, ok := c.coord.GetRoom(id); ok {
			ack.Join = &sketch.MemberAck{Room: v}
		}
		c.reply(ack)

	case "join_room":
		if msg.Room == "" {
			c.fail(msg, errBadRequest)

			return
		}

		join, err := c.coord.JoinRoom(msg.Room, pid)
		if err != nil {
			c.fail(msg, err)

			return
		}

		if err := c.subscribe(join.Room.ID); err != nil {
			c.fail(msg, err)

			return
		}

		ack := c.ack(msg, join.Room.ID)
		ack.Join = &join
		c.reply(ack)

	case "leave_room":
		room, err := c.currentRoom(msg)
		if err != nil {
			c.fail(msg, err)

			return
		}

		if err := c.coord.LeaveRoom(room, pid); err != nil {
			c.fail(msg, err)

			return
		}

		// The coordinator already closed the stream; this only forgets it.
		c.unsubscribe()

		c.reply(c.ack(msg, room))

	case "start_game", "pause_game", "resume_game", "end_game", "skip_turn":
		room, err := c.currentRoom(msg)
		if err != nil {
			c.fail(msg, err)

			return
		}

		op := map[string]func(string, string) error{
			"start_game":  c.coord.StartGame,
			"pause_game":  c.coord.PauseGame,
			"resume_game": c.coord.ResumeGame,
			"end_game":    c.coord.EndGame,
			"skip_turn":   c.coord.SkipTurn,
		}[msg.Type]

		if err := op(room, pid); err != nil {
			c.fail(msg, err)

			return
		}

		c.reply(c.ack(msg, room))

	case "stroke":
		if !c.strokes.Allow() {
			c.fail(msg, errRateLimited)

			return
		}

		if msg.Stroke == nil {
			c.fail(msg, sketch.ErrInvalidStroke)

			return
		}

		room, err := c.currentRoom(msg)
		if err != nil {
			c.fail(msg, err)

			return
		}

		if _, err := c.coord.SubmitStroke(room, pid, *msg.Stroke); err != nil {
			c.fail(msg, err)
		}

	case "clear_canvas":
		room, err := c.currentRoom(msg)
		if err != nil {
			c.fail(msg, err)

			return
		}

		if err := c.coord.ClearCanvas(room, pid); err != nil {
			c.fail(msg, err)

			return
		}

		c.reply(c.ack(msg, room))

	case "guess":
		if !c.guesses.Allow() {
			c.fail(msg, errRateLimited)

			return
		}

		room, err := c.currentRoom(msg)
		if err != nil {
			c.fail(msg, err)

			return
		}

		res, err := c.coord.SubmitGuess(room, pid, msg.Text)
		if err != nil {
			c.fail(msg, err)

			return
		}

		ack := c.ack(msg, room)
		ack.Guess = &res
		c.reply(ack)

	default:
		c.fail(msg, errUnknownType)
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.unsubscribe()
		c.forwarders.Wait()
		close(c.send)

		if !c.replaced.Load() {
			_ = c.coord.Disconnect(c.player.ID)
		}

		_ = c.conn.Close()

		logf(c.cfg, "GAMES: Player %s disconnected", c.player.ID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logf(c.cfg, "GAMES: Read error for player %s: %v", c.player.ID, err)
			}

			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.fail(msg, errBadRequest)

			continue
		}

		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWebSocket(cfg *Config, coord *sketch.Coordinator, sess *sessions) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		name := r.URL.Query().Get("name")

		var (
			player sketch.Player
			err    error
		)

		if claims, perr := sess.parse(sessionToken(r)); perr == nil {
			if name == "" {
				name = claims.Name
			}
			player, err = coord.Resume(claims.Subject, name)
		} else {
			player, err = coord.Connect(name)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		token, err := sess.issue(player, time.Now())
		if err != nil {
			http.Error(w, "unable to issue session", http.StatusInternalServerError)

			return
		}

		header := http.Header{}
		header.Add("Set-Cookie", sessionCookie(cfg, token, sess.ttl).String())

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			logf(cfg, "GAMES: Upgrade error from %s: %v", realIP(r), err)

			return
		}

		client := newClient(cfg, coord, conn, player)

		welcome := WelcomeMessage{Type: "welcome", Player: player, Token: token}

		// A reconnecting player goes straight back to its seat.
		if _, room, ok := coord.Player(player.ID); ok && room != "" {
			if ack, err := coord.JoinRoom(room, player.ID); err == nil {
				welcome.Seat = &ack
			}
		}

		client.send <- welcome

		if welcome.Seat != nil {
			if err := client.subscribe(welcome.Seat.Room.ID); err != nil {
				logf(cfg, "GAMES: Unable to resubscribe player %s to room %s: %v", player.ID, welcome.Seat.Room.ID, err)
			}
		}

		logf(cfg, "GAMES: Player %s (%q) connected from %s", player.ID, player.Name, realIP(r))

		go client.writePump()
		client.readPump()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	return w.Write(append(data, '\n'))
}

func serveRoomList(cfg *Config, coord *sketch.Coordinator, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		if _, err := writeJSON(w, http.StatusOK, coord.ListRooms()); err != nil {
			errs <- err
		}
	}
}

func serveRoom(cfg *Config, coord *sketch.Coordinator, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		securityHeaders(cfg, w)

		v, ok := coord.GetRoom(ps.ByName("code"))
		if !ok {
			if _, err := writeJSON(w, http.StatusNotFound, ErrorMessage{
				Type:    "error",
				Op:      "get_room",
				Code:    sketch.Code(sketch.ErrRoomNotFound),
				Message: sketch.ErrRoomNotFound.Error(),
			}); err != nil {
				errs <- err
			}

			return
		}

		written, err := writeJSON(w, http.StatusOK, v)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Room %s (%s) to %s in %s",
			v.ID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveRoomQR generates a PNG QR code for the room's invite link.
func serveRoomQR(cfg *Config, coord *sketch.Coordinator, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		v, ok := coord.GetRoom(ps.ByName("code"))
		if !ok {
			http.Error(w, sketch.ErrRoomNotFound.Error(), http.StatusNotFound)

			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/?room=" + v.ID

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}
