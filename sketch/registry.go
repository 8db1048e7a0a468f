/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"errors"
	"maps"
	"slices"
	"time"
)

// CreateRoom opens a room with hostID as its only member and host. Room
// codes are regenerated until one is free.
func (c *Coordinator) CreateRoom(hostID string) (string, error) {
	host, ok := c.player(hostID)
	if !ok {
		return "", ErrUnknownPlayer
	}

	now := c.clock.Now()

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()

		return "", ErrRoomClosed
	}

	var id string
	for range roomIDAttempts {
		candidate := c.ids.RoomID()
		if _, exists := c.rooms[candidate]; !exists && len(candidate) == RoomIDLength {
			id = candidate

			break
		}
	}

	if id == "" {
		c.mu.Unlock()

		return "", ErrIDSpaceExhausted
	}

	c.rooms[id] = newRoom(id, host.Player, c.opts.MaxRounds, c.opts.ReplaySize, now)
	c.mu.Unlock()

	c.leavePrevious(hostID, host.room, id)
	c.setPlayerRoom(hostID, "", id)

	c.logf("ROOMS: Created room %s for %s", id, hostID)

	return id, nil
}

// JoinRoom adds playerID to the room, or reconnects it if it is already a
// member. While a game is running, newcomers join as spectators if late
// joins are allowed.
func (c *Coordinator) JoinRoom(roomID, playerID string) (MemberAck, error) {
	p, ok := c.player(playerID)
	if !ok {
		return MemberAck{}, ErrUnknownPlayer
	}

	target := c.lookup(roomID)
	if target == nil {
		return MemberAck{}, ErrRoomNotFound
	}

	var ack MemberAck

	err := c.do(target, c.clock.Now(), func(r *room, now time.Time) error {
		if m, _ := r.memberLocked(playerID); m != nil {
			m.connected = true
			m.disconnectedAt = time.Time{}
			m.name = p.Name
			r.emptySince = time.Time{}
			r.touchLocked(now)

			if r.hostID == "" {
				r.hostID = m.id
			}

			r.publishStateLocked(now, ReasonJoined)

			ack = MemberAck{Room: r.viewLocked(now), Rejoined: true, Spectator: m.spectator}

			return nil
		}

		if len(r.members) >= c.opts.MaxPlayers {
			return ErrRoomFull
		}

		m := &member{id: playerID, name: p.Name, connected: true}

		if r.status == StatusPlaying {
			if !c.opts.AllowLateJoin {
				return ErrAlreadyPlaying
			}
			m.spectator = true
		}

		r.members = append(r.members, m)
		r.emptySince = time.Time{}
		r.touchLocked(now)

		if r.hostID == "" {
			r.hostID = m.id
		}

		r.publishStateLocked(now, ReasonJoined)

		ack = MemberAck{Room: r.viewLocked(now), Spectator: m.spectator}

		return nil
	})
	if err != nil {
		return MemberAck{}, err
	}

	c.leavePrevious(playerID, p.room, target.id)
	c.setPlayerRoom(playerID, "", target.id)

	c.logf("ROOMS: Player %s joined room %s (rejoin=%t)", playerID, target.id, ack.Rejoined)

	return ack, nil
}

// leavePrevious gives up the seat the player held before moving to next.
// It runs only once the new seat is secured, so a rejected move keeps the
// old one.
func (c *Coordinator) leavePrevious(playerID, previous, next string) {
	if previous == "" || previous == next {
		return
	}

	if err := c.LeaveRoom(previous, playerID); err != nil && !errors.Is(err, ErrRoomNotFound) && !errors.Is(err, ErrNotMember) {
		c.logf("ROOMS: Player %s could not leave room %s: %v", playerID, previous, err)
	}
}

// LeaveRoom removes playerID from the room for good.
func (c *Coordinator) LeaveRoom(roomID, playerID string) error {
	var id string

	err := c.withRoom(roomID, func(r *room, now time.Time) error {
		if m, _ := r.memberLocked(playerID); m == nil {
			return ErrNotMember
		}

		id = r.id
		r.touchLocked(now)
		c.removeMemberLocked(r, now, playerID, ReasonDrawerLeft)

		return nil
	})
	if err != nil {
		return err
	}

	c.setPlayerRoom(playerID, id, "")

	c.logf("ROOMS: Player %s left room %s", playerID, id)

	return nil
}

// Disconnect marks the player's connection as lost. The player keeps its
// seat for ReconnectGrace; a drawer loses the turn immediately.
func (c *Coordinator) Disconnect(playerID string) error {
	var roomID string

	c.playersMu.Lock()
	rec, ok := c.players[playerID]
	if ok {
		rec.disconnectedAt = c.clock.Now()
		roomID = rec.room
	}
	c.playersMu.Unlock()

	if !ok {
		return ErrUnknownPlayer
	}
	if roomID == "" {
		return nil
	}

	return c.withRoom(roomID, func(r *room, now time.Time) error {
		m, _ := r.memberLocked(playerID)
		if m == nil {
			return ErrNotMember
		}

		m.connected = false
		m.disconnectedAt = now
		r.dropSubLocked(playerID, nil)

		if r.connectedLocked() == 0 {
			r.emptySince = now
		}

		c.departedLocked(r, now, m, ReasonDrawerDisconnected, ReasonDisconnected)

		return nil
	})
}

// removeMemberLocked drops the member, hands the host role on, and keeps
// the game consistent with who is left.
func (c *Coordinator) removeMemberLocked(r *room, now time.Time, playerID, reason string) {
	m, idx := r.memberLocked(playerID)
	if m == nil {
		return
	}

	wasDrawer := r.drawerID == playerID

	r.members = slices.Delete(r.members, idx, idx+1)
	r.dropSubLocked(playerID, nil)

	switch {
	case wasDrawer:
		// The member after the drawer now sits at idx.
		r.drawerIdx = idx - 1
	case idx < r.drawerIdx:
		r.drawerIdx--
	}

	if r.hostID == playerID {
		r.hostID = ""
		if len(r.members) > 0 {
			r.hostID = r.members[0].id
		}
	}

	if r.connectedLocked() == 0 && r.emptySince.IsZero() {
		r.emptySince = now
	}

	c.departedLocked(r, now, m, reason, ReasonLeft)
}

// departedLocked reacts to a member that can no longer take part in the
// current turn, either because it left or because it disconnected.
func (c *Coordinator) departedLocked(r *room, now time.Time, m *member, turnReason, stateReason string) {
	if r.status != StatusPlaying {
		r.publishStateLocked(now, stateReason)

		return
	}

	if r.drawerID == m.id {
		// A drawer that leaves mid-turn earns nothing for it.
		m.score = max(m.score-r.drawerAward, 0)
		r.drawerAward = 0

		if r.eligibleLocked() < 2 {
			c.toWaitingLocked(r, now, ReasonNotEnoughPlayers)

			return
		}

		c.advanceLocked(r, now, turnReason)

		return
	}

	if r.eligibleLocked() < 2 {
		c.toWaitingLocked(r, now, ReasonNotEnoughPlayers)

		return
	}

	if c.opts.Advance == AdvanceWhenAllGuessed && r.allGuessedLocked() {
		c.advanceLocked(r, now, ReasonGuessed)

		return
	}

	r.publishStateLocked(now, stateReason)
}

// SweepIdle evicts members whose reconnect grace ran out and destroys
// rooms that are empty past IdleGrace or inactive past IdleMax. It returns
// the ids of the destroyed rooms in order.
func (c *Coordinator) SweepIdle(now time.Time) []string {
	c.mu.RLock()
	rooms := slices.Collect(maps.Values(c.rooms))
	c.mu.RUnlock()

	var removed []string

	for _, r := range rooms {
		var (
			evicted []string
			members []string
			closed  bool
		)

		_ = c.do(r, now, func(r *room, now time.Time) error {
			for _, m := range slices.Clone(r.members) {
				if !m.connected && now.Sub(m.disconnectedAt) > c.opts.ReconnectGrace {
					c.removeMemberLocked(r, now, m.id, ReasonDrawerLeft)
					evicted = append(evicted, m.id)
				}
			}

			switch {
			case r.connectedLocked() == 0 && !r.emptySince.IsZero() && now.Sub(r.emptySince) > c.opts.IdleGrace:
				c.closeLocked(r, ReasonEmpty)
			case now.Sub(r.lastActivity) > c.opts.IdleMax:
				c.closeLocked(r, ReasonIdle)
			default:
				return nil
			}

			closed = true
			for _, m := range r.members {
				members = append(members, m.id)
			}

			return nil
		})

		for _, id := range evicted {
			c.setPlayerRoom(id, r.id, "")
		}

		if closed {
			for _, id := range members {
				c.setPlayerRoom(id, r.id, "")
			}
			removed = append(removed, r.id)
		}
	}

	c.remove(removed...)
	c.forgetPlayers(now)

	slices.Sort(removed)

	return removed
}

// forgetPlayers drops disconnected players that no longer sit in any room.
func (c *Coordinator) forgetPlayers(now time.Time) {
	c.playersMu.Lock()
	defer c.playersMu.Unlock()

	for id, rec := range c.players {
		if rec.room == "" && !rec.disconnectedAt.IsZero() && now.Sub(rec.disconnectedAt) > c.opts.ReconnectGrace {
			delete(c.players, id)
		}
	}
}
