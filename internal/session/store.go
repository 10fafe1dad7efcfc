package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store tracks live connections by ID, by user (the personal room) and by
// conversation room. A connection holds at most one conversation room.
type Store struct {
	mu      sync.RWMutex
	conns   map[string]*Conn
	byUser  map[string]map[string]*Conn
	rooms   map[string]map[string]*Conn
	current map[string]string // conn ID -> conversation ID

	bufSize int
	log     *zap.Logger
}

func NewStore(bufSize int, log *zap.Logger) *Store {
	if bufSize <= 0 {
		bufSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		conns:   make(map[string]*Conn),
		byUser:  make(map[string]map[string]*Conn),
		rooms:   make(map[string]map[string]*Conn),
		current: make(map[string]string),
		bufSize: bufSize,
		log:     log,
	}
}

// Add registers a new connection for the user and returns it.
func (s *Store) Add(userID string) *Conn {
	c := &Conn{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, s.bufSize),
		done:        make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[c.ID] = c
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]*Conn)
	}
	s.byUser[userID][c.ID] = c
	return c
}

// Remove drops the connection from every index and returns how many live
// connections its user still has. Removing twice is harmless.
func (s *Store) Remove(c *Conn) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, c.ID)
	s.leaveLocked(c)
	conns, ok := s.byUser[c.UserID]
	if !ok {
		return 0
	}
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(s.byUser, c.UserID)
		return 0
	}
	return len(conns)
}

// IsOnline reports whether the user has at least one live connection.
func (s *Store) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser[userID]) > 0
}

// UserConns returns a snapshot of the user's live connections.
func (s *Store) UserConns(userID string) []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.byUser[userID])
}

// Len returns the number of live connections.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// CurrentRoom returns the conversation the connection has joined, or "".
func (s *Store) CurrentRoom(c *Conn) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current[c.ID]
}

// Join moves the connection into the room and returns the room it left, if
// any. Callers enforce authorization and join policy.
func (s *Store) Join(c *Conn, room string) (previous string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns[c.ID]; !ok {
		return ""
	}
	previous = s.current[c.ID]
	if previous == room {
		return ""
	}
	s.leaveLocked(c)
	if s.rooms[room] == nil {
		s.rooms[room] = make(map[string]*Conn)
	}
	s.rooms[room][c.ID] = c
	s.current[c.ID] = room
	return previous
}

// Leave removes the connection from room. It reports false when the
// connection was not in that room.
func (s *Store) Leave(c *Conn, room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current[c.ID] != room {
		return false
	}
	s.leaveLocked(c)
	return true
}

func (s *Store) leaveLocked(c *Conn) {
	room, ok := s.current[c.ID]
	if !ok {
		return
	}
	delete(s.current, c.ID)
	if members := s.rooms[room]; members != nil {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(s.rooms, room)
		}
	}
}

// RoomMembers returns a snapshot of the connections joined to room.
func (s *Store) RoomMembers(room string) []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.rooms[room])
}

// Broadcast delivers payload to every connection in room except exclude and
// returns the number of connections it was queued for.
func (s *Store) Broadcast(room string, payload any, exclude *Conn) int {
	return s.deliverAll(s.RoomMembers(room), payload, func(c *Conn) bool {
		return exclude != nil && c.ID == exclude.ID
	})
}

// BroadcastExceptUser delivers payload to every connection in room that does
// not belong to userID.
func (s *Store) BroadcastExceptUser(room string, payload any, userID string) int {
	return s.deliverAll(s.RoomMembers(room), payload, func(c *Conn) bool {
		return c.UserID == userID
	})
}

// InRoom reports whether any connection of userID has joined room.
func (s *Store) InRoom(room, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.rooms[room] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// SendToUser delivers payload to every live connection of the user.
func (s *Store) SendToUser(userID string, payload any) int {
	return s.deliverAll(s.UserConns(userID), payload, nil)
}

// Deliver queues payload for a single connection.
func (s *Store) Deliver(c *Conn, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("encode outbound event", zap.Error(err))
		return false
	}
	return s.push(c, data)
}

// CloseAll signals every live connection to shut down.
func (s *Store) CloseAll() {
	s.mu.RLock()
	conns := snapshot(s.conns)
	s.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
}

func (s *Store) deliverAll(targets []*Conn, payload any, skip func(*Conn) bool) int {
	if len(targets) == 0 {
		return 0
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("encode outbound event", zap.Error(err))
		return 0
	}
	n := 0
	for _, c := range targets {
		if skip != nil && skip(c) {
			continue
		}
		if s.push(c, data) {
			n++
		}
	}
	return n
}

// push evicts a connection whose queue is full so a stalled reader never
// holds up the sender.
func (s *Store) push(c *Conn, data []byte) bool {
	if c.enqueue(data) {
		return true
	}
	if !c.closed() {
		s.log.Warn("outbound queue full, evicting connection",
			zap.String("conn_id", c.ID), zap.String("user_id", c.UserID))
		c.Close()
	}
	return false
}

func snapshot(m map[string]*Conn) []*Conn {
	out := make([]*Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
