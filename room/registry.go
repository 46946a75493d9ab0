package room

import (
	"errors"
	"sync"
	"time"
)

// maxMembers is the hard room capacity. Rooms host exactly one 1:1 call.
const maxMembers = 2

var ErrRoomFull = errors.New("room is full")

// Member is one room occupant. The initiator flag is fixed at join time:
// it marks the connection that observed an empty room.
type Member struct {
	ConnID string
	UserID string

	initiator bool
}

type room struct {
	id        string
	members   [maxMembers]Member
	size      int
	createdAt time.Time
}

func (rm *room) indexOf(connID string) int {
	for i := 0; i < rm.size; i++ {
		if rm.members[i].ConnID == connID {
			return i
		}
	}
	return -1
}

func (rm *room) others(connID string) []Member {
	out := make([]Member, 0, maxMembers-1)
	for i := 0; i < rm.size; i++ {
		if rm.members[i].ConnID != connID {
			out = append(out, rm.members[i])
		}
	}
	return out
}

// JoinResult is what a joining connection learns about the room.
// Departed is set when the join implicitly removed the connection from a
// previous room; the caller must notify that room's remaining members.
type JoinResult struct {
	Initiator bool
	Rejoined  bool
	Peers     []Member
	Departed  *Departure
}

// Departure describes one room a connection was removed from.
type Departure struct {
	RoomID    string
	Member    Member
	Remaining []Member
}

// Registry holds all live rooms. It is a pure guarded structure: join and
// leave notifications are emitted by the caller, not here. A connection
// belongs to at most one room at a time.
type Registry struct {
	mx     *sync.Mutex
	rooms  map[string]*room
	byConn map[string]string
	byUser map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		mx:     &sync.Mutex{},
		rooms:  make(map[string]*room),
		byConn: make(map[string]string),
		byUser: make(map[string]int),
	}
}

// Join adds the connection to the room, creating the room on first join.
// Joining a room the connection already belongs to is idempotent and
// returns the current state with Rejoined set. A full room returns
// ErrRoomFull without membership change.
func (r *Registry) Join(roomID string, m Member) (JoinResult, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	rm, ok := r.rooms[roomID]
	if ok {
		if i := rm.indexOf(m.ConnID); i >= 0 {
			return JoinResult{
				Initiator: rm.members[i].initiator,
				Rejoined:  true,
				Peers:     rm.others(m.ConnID),
			}, nil
		}
		if rm.size == maxMembers {
			return JoinResult{}, ErrRoomFull
		}
	}

	// the connection may switch rooms, but never occupy two at once
	var departed *Departure
	if prev, inRoom := r.byConn[m.ConnID]; inRoom && prev != roomID {
		if member, remaining, left := r.removeLocked(prev, m.ConnID); left {
			departed = &Departure{
				RoomID:    prev,
				Member:    member,
				Remaining: remaining,
			}
		}
	}

	if !ok {
		m.initiator = true
		rm = &room{
			id:        roomID,
			createdAt: time.Now(),
		}
		rm.members[0] = m
		rm.size = 1
		r.rooms[roomID] = rm
		r.byConn[m.ConnID] = roomID
		r.byUser[m.UserID]++
		return JoinResult{Initiator: true, Peers: []Member{}, Departed: departed}, nil
	}

	m.initiator = false
	peers := rm.others(m.ConnID)
	rm.members[rm.size] = m
	rm.size++
	r.byConn[m.ConnID] = roomID
	r.byUser[m.UserID]++
	return JoinResult{Peers: peers, Departed: departed}, nil
}

// Leave removes the connection from the room if present. It returns the
// departed member, the remaining members to notify, and whether a removal
// actually happened.
func (r *Registry) Leave(roomID, connID string) (Member, []Member, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()

	return r.removeLocked(roomID, connID)
}

// LeaveAll removes the connection from every room it belongs to, for
// disconnect cleanup. With the one-room invariant this yields at most one
// departure, but callers should not rely on that.
func (r *Registry) LeaveAll(connID string) []Departure {
	r.mx.Lock()
	defer r.mx.Unlock()

	var out []Departure
	if roomID, ok := r.byConn[connID]; ok {
		if member, remaining, left := r.removeLocked(roomID, connID); left {
			out = append(out, Departure{
				RoomID:    roomID,
				Member:    member,
				Remaining: remaining,
			})
		}
	}
	return out
}

func (r *Registry) removeLocked(roomID, connID string) (Member, []Member, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return Member{}, nil, false
	}
	i := rm.indexOf(connID)
	if i < 0 {
		return Member{}, nil, false
	}

	member := rm.members[i]
	for ; i < rm.size-1; i++ {
		rm.members[i] = rm.members[i+1]
	}
	rm.size--
	rm.members[rm.size] = Member{}

	delete(r.byConn, connID)
	if r.byUser[member.UserID] <= 1 {
		delete(r.byUser, member.UserID)
	} else {
		r.byUser[member.UserID]--
	}

	if rm.size == 0 {
		delete(r.rooms, roomID)
		return member, []Member{}, true
	}
	return member, rm.others(connID), true
}

// MemberOf reports whether the connection is currently a member of the room.
func (r *Registry) MemberOf(roomID, connID string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	rm, ok := r.rooms[roomID]
	return ok && rm.indexOf(connID) >= 0
}

// Peers returns the other members of the room, or nil if the connection
// is not itself a member.
func (r *Registry) Peers(roomID, connID string) []Member {
	r.mx.Lock()
	defer r.mx.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok || rm.indexOf(connID) < 0 {
		return nil
	}
	return rm.others(connID)
}

// UserBusy reports whether any of the user's connections occupies a room.
// This is the busy check for incoming invitations.
func (r *Registry) UserBusy(userID string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	return r.byUser[userID] > 0
}

// Stats returns the number of open rooms and total members across them.
func (r *Registry) Stats() (rooms, members int) {
	r.mx.Lock()
	defer r.mx.Unlock()

	for _, rm := range r.rooms {
		members += rm.size
	}
	return len(r.rooms), members
}
