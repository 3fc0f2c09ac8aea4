package main

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sasha-s/go-deadlock"
)

const (
	DefaultMaxRooms = 100
	maxRoomNameLen  = 32
)

// RoomIdleTimeout is how long an empty room lingers before it is reaped
var RoomIdleTimeout = 60 * time.Second

var ErrTooManyRooms = errors.New("too many active rooms")

// RoomManager creates rooms on demand and reaps them once they empty out.
// The default room lives for the whole process.
type RoomManager struct {
	mu          deadlock.RWMutex
	rooms       map[string]*Room
	reapers     map[string]*time.Timer
	defaultRoom string
	maxRooms    int
	idleTimeout time.Duration
	opts        RoomOptions

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRoomManager creates the manager and starts the default room
func NewRoomManager(defaultRoom string, maxRooms int, opts RoomOptions) *RoomManager {
	if maxRooms <= 0 {
		maxRooms = DefaultMaxRooms
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &RoomManager{
		rooms:       make(map[string]*Room),
		reapers:     make(map[string]*time.Timer),
		defaultRoom: DefaultRoomName,
		maxRooms:    maxRooms,
		idleTimeout: RoomIdleTimeout,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
	}
	// Same form a join by name resolves to
	m.defaultRoom = m.CleanRoomName(defaultRoom)
	m.mu.Lock()
	m.joinOrCreateLocked(m.defaultRoom)
	m.mu.Unlock()
	return m
}

// DefaultRoom returns the name used when a join names no room
func (m *RoomManager) DefaultRoom() string {
	return m.defaultRoom
}

// CleanRoomName trims and bounds a requested room name. Empty selects the
// default room.
func (m *RoomManager) CleanRoomName(name string) string {
	name = SanitizeName(name, maxRoomNameLen, "")
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		return m.defaultRoom
	}
	return name
}

// JoinOrCreate returns the named room, creating and starting it if needed
func (m *RoomManager) JoinOrCreate(name string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinOrCreateLocked(m.CleanRoomName(name))
}

func (m *RoomManager) joinOrCreateLocked(name string) (*Room, error) {
	if t, ok := m.reapers[name]; ok {
		t.Stop()
		delete(m.reapers, name)
	}
	if r, ok := m.rooms[name]; ok {
		return r, nil
	}
	if len(m.rooms) >= m.maxRooms {
		return nil, ErrTooManyRooms
	}
	r := NewRoom(name, m.opts)
	m.rooms[name] = r
	go r.Run(m.ctx)
	Log.Infow("room created", "room", name, "rooms", len(m.rooms))
	return r, nil
}

// Join puts sessionID into the named room. Lookup and join happen under the
// manager lock so a pending reap cannot stop the room in between.
func (m *RoomManager) Join(name, sessionID string, opts JoinOptions) (*Room, *Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = m.CleanRoomName(name)
	r, err := m.joinOrCreateLocked(name)
	if err != nil {
		return nil, nil, err
	}
	p, err := r.Join(sessionID, opts)
	if err != nil {
		m.scheduleReapLocked(name, r)
		return nil, nil, err
	}
	return r, p, nil
}

// Get returns a room by name, or nil
func (m *RoomManager) Get(name string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[name]
}

// List returns info about all rooms, sorted by name
func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		list = append(list, r.Info())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Count returns the number of live rooms
func (m *RoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// RemovePlayer takes sessionID out of a room and schedules the room for
// reaping if it is now empty.
func (m *RoomManager) RemovePlayer(name, sessionID string) (Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[name]
	if !ok {
		return Player{}, false
	}
	p, ok := r.Leave(sessionID)
	m.scheduleReapLocked(name, r)
	return p, ok
}

func (m *RoomManager) scheduleReapLocked(name string, r *Room) {
	if name == m.defaultRoom || r.PlayerCount() > 0 {
		return
	}
	if _, pending := m.reapers[name]; pending {
		return
	}
	m.reapers[name] = time.AfterFunc(m.idleTimeout, func() { m.reap(name, r) })
}

func (m *RoomManager) reap(name string, r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reapers, name)
	if m.rooms[name] != r || r.PlayerCount() > 0 {
		return
	}
	delete(m.rooms, name)
	r.Stop()
	Log.Infow("room reaped", "room", name, "rooms", len(m.rooms))
}

// Evict takes every player out of every room. Rooms stay up.
func (m *RoomManager) Evict() []Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Player
	for name, r := range m.rooms {
		left := r.LeaveAll()
		if len(left) > 0 {
			Log.Infow("room evicted", "room", name, "players", len(left))
		}
		out = append(out, left...)
	}
	return out
}

// Shutdown stops every room and pending reaper
func (m *RoomManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, t := range m.reapers {
		t.Stop()
		delete(m.reapers, name)
	}
	for _, r := range m.rooms {
		r.Stop()
	}
	m.cancel()
}
