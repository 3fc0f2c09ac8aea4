package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
)

const (
	DefaultRoomName   = "mundo_mythica"
	DefaultTickRate   = 20 // ticks per second
	DefaultMaxPlayers = 50
	TileSize          = 32 // pixels per tile on the client
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadyJoined = errors.New("session already in room")
	ErrNotInRoom     = errors.New("session not in room")
	ErrNoSpawn       = errors.New("no free spawn tile")
	ErrTileOccupied  = errors.New("tile is occupied")
)

// Broadcaster is the outbound sink of one connection
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Spawn is a saved position to resume at
type Spawn struct {
	X, Y int
	HP   int // 0 keeps full HP
}

// JoinOptions describe the player entering a room
type JoinOptions struct {
	Name      string
	Skin      int
	AccountID int64
	Resume    *Spawn
}

// RoomOptions configure a new room; zero values take defaults
type RoomOptions struct {
	Tiles      *TileMap
	MaxPlayers int
	TickRate   int
	Policy     MovePolicy
	Spawn      *Spawn // nil spawns at the map centre
	Events     *EventLog
}

// Room is one authoritative world instance. All shared state is changed
// under mu and recorded in changes, which the tick loop ships as a patch.
type Room struct {
	name       string
	maxPlayers int
	tickRate   int
	policy     MovePolicy
	spawnX     int
	spawnY     int
	events     *EventLog

	mu       deadlock.RWMutex
	players  map[string]*Player
	clients  map[string]Broadcaster
	tiles    *TileMap
	occ      *Occupancy
	changes  *ChangeSet
	edited   map[int]bool // tiles changed since load, carried in keyframes
	seq      uint64
	tick     uint64
	rng      *rand.Rand
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRoom creates a room. The tile map is cloned so rooms never share a grid.
func NewRoom(name string, opts RoomOptions) *Room {
	tiles := opts.Tiles
	if tiles == nil {
		tiles = DefaultMap(DefaultMapWidth, DefaultMapHeight, 1)
	}
	tiles = tiles.Clone()
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = DefaultMaxPlayers
	}
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}
	if opts.Policy == (MovePolicy{}) {
		opts.Policy = DefaultMovePolicy()
	}
	r := &Room{
		name:       name,
		maxPlayers: opts.MaxPlayers,
		tickRate:   opts.TickRate,
		policy:     opts.Policy,
		spawnX:     tiles.Width / 2,
		spawnY:     tiles.Height / 2,
		events:     opts.Events,
		players:    make(map[string]*Player),
		clients:    make(map[string]Broadcaster),
		tiles:      tiles,
		occ:        NewOccupancy(tiles.Width, tiles.Height),
		changes:    NewChangeSet(),
		edited:     make(map[int]bool),
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6d79746869636121)),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if opts.Spawn != nil {
		r.spawnX, r.spawnY = opts.Spawn.X, opts.Spawn.Y
	}
	return r
}

// Name returns the room name
func (r *Room) Name() string {
	return r.name
}

// Run drives the tick loop until ctx is done or Stop is called
func (r *Room) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(r.tickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.update()
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop terminates the tick loop
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Join adds a player for sessionID and returns a copy of the new record
func (r *Room) Join(sessionID string, opts JoinOptions) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[sessionID]; ok {
		return nil, ErrAlreadyJoined
	}
	if len(r.players) >= r.maxPlayers {
		return nil, ErrRoomFull
	}

	x, y, ok := r.spawnPoint(sessionID, opts.Resume)
	if !ok {
		return nil, ErrNoSpawn
	}
	name := SanitizeName(opts.Name, maxNameLen, DefaultName)
	p := NewPlayer(sessionID, name, opts.Skin, x, y)
	p.AccountID = opts.AccountID
	if opts.Resume != nil && opts.Resume.HP > 0 {
		p.HP = min(opts.Resume.HP, p.MaxHP)
	}

	r.players[sessionID] = p
	r.occ.Put(r.tiles.Index(x, y), sessionID)
	r.changes.Add(sessionID)
	r.events.Track(EventJoin, p.AccountID, r.name, p.Name)
	Log.Infow("player joined", "room", r.name, "sid", sessionID, "name", p.Name, "x", x, "y", y)

	cp := *p
	return &cp, nil
}

// spawnPoint prefers the resume tile, then the room spawn, then the nearest
// free walkable tile around the room spawn.
func (r *Room) spawnPoint(sessionID string, resume *Spawn) (int, int, bool) {
	if resume != nil && r.freeTile(resume.X, resume.Y, sessionID) {
		return resume.X, resume.Y, true
	}
	return r.nearestFree(r.spawnX, r.spawnY, sessionID)
}

func (r *Room) freeTile(x, y int, sessionID string) bool {
	return r.tiles.Walkable(x, y) && r.occ.Free(r.tiles.Index(x, y), sessionID)
}

// nearestFree searches rings of growing Chebyshev radius around (x, y)
func (r *Room) nearestFree(x, y int, sessionID string) (int, int, bool) {
	limit := max(r.tiles.Width, r.tiles.Height)
	for d := 0; d <= limit; d++ {
		for dy := -d; dy <= d; dy++ {
			for dx := -d; dx <= d; dx++ {
				if max(absInt(dx), absInt(dy)) != d {
					continue
				}
				if r.freeTile(x+dx, y+dy, sessionID) {
					return x + dx, y + dy, true
				}
			}
		}
	}
	return 0, 0, false
}

// Attach registers the outbound sink for sessionID and sends it the world:
// welcome, the map in chunks, then a keyframe at the current sequence.
func (r *Room) Attach(sessionID string, b Broadcaster) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[sessionID]
	if !ok {
		return ErrNotInRoom
	}
	r.clients[sessionID] = b

	b.SendJSON(Envelope{T: MsgWelcome, Data: WelcomeMsg{
		ID:       p.ID,
		X:        p.X,
		Y:        p.Y,
		Width:    r.tiles.Width,
		Height:   r.tiles.Height,
		TileSize: TileSize,
		Seq:      r.seq,
	}})
	for _, chunk := range r.tiles.Chunks(MapChunkSize) {
		b.SendJSON(Envelope{T: MsgMapChunk, Data: chunk})
	}
	r.sendKeyframe(b)
	return nil
}

// Move applies a move intent. Rejections leave state unchanged and, when the
// policy asks for it, send the sender a correction.
func (r *Room) Move(sessionID string, req MoveRequest) MoveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.players[sessionID]
	if p != nil && p.Alive && !r.policy.Validate {
		req.X = ClampInt(req.X, 0, r.tiles.Width-1)
		req.Y = ClampInt(req.Y, 0, r.tiles.Height-1)
	}

	// Same tile: a turn in place
	if p != nil && p.Alive && req.X == p.X && req.Y == p.Y {
		if req.Dir != nil && validDir(*req.Dir) && *req.Dir != p.Dir {
			p.Dir = *req.Dir
			r.changes.Mark(sessionID, FieldDir)
		}
		return MoveResult{Accepted: true, X: p.X, Y: p.Y, Dir: p.Dir}
	}

	now := r.now()
	if err := ValidateMove(r.policy, r.tiles, r.occ, p, req, now); err != nil {
		return r.reject(p, sessionID, err)
	}

	dir := DirectionFor(req.X-p.X, req.Y-p.Y, p.Dir)
	if req.Dir != nil && validDir(*req.Dir) {
		dir = *req.Dir
	}
	mask := FieldPos
	if dir != p.Dir {
		mask |= FieldDir
	}
	if !p.Moving {
		mask |= FieldMoving
	}

	r.occ.Move(r.tiles.Index(p.X, p.Y), r.tiles.Index(req.X, req.Y), sessionID)
	p.X, p.Y = req.X, req.Y
	p.Dir = dir
	p.Moving = true
	p.LastMove = now
	r.changes.Mark(sessionID, mask)
	return MoveResult{Accepted: true, X: p.X, Y: p.Y, Dir: p.Dir}
}

func (r *Room) reject(p *Player, sessionID string, err error) MoveResult {
	res := MoveResult{Reason: ReasonNotFound}
	var me *MoveError
	if errors.As(err, &me) {
		res.Reason = me.Reason
	}
	if p == nil {
		return res
	}
	res.X, res.Y, res.Dir = p.X, p.Y, p.Dir
	Log.Debugw("move rejected", "room", r.name, "sid", sessionID, "reason", res.Reason, "err", err)
	r.events.Track(EventReject, p.AccountID, r.name, res.Reason)

	if r.policy.CorrectOnReject {
		if c, ok := r.clients[sessionID]; ok {
			c.SendJSON(Envelope{T: MsgCorrection, Data: CorrectionMsg{
				X:      p.X,
				Y:      p.Y,
				Dir:    p.Dir,
				Reason: res.Reason,
			}})
		}
	}
	return res
}

// Leave removes the player and its client. It reports false if the session
// was not in the room.
func (r *Room) Leave(sessionID string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sessionID)
}

// LeaveAll removes every player and returns them sorted by session id
func (r *Room) LeaveAll() []Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Player, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.leaveLocked(id); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) leaveLocked(sessionID string) (Player, bool) {
	p, ok := r.players[sessionID]
	if !ok {
		return Player{}, false
	}
	r.occ.Clear(r.tiles.Index(p.X, p.Y), sessionID)
	delete(r.players, sessionID)
	delete(r.clients, sessionID)
	r.changes.Remove(sessionID)
	r.events.Track(EventLeave, p.AccountID, r.name, p.Name)
	Log.Infow("player left", "room", r.name, "sid", sessionID, "name", p.Name)
	return *p, true
}

// SetTile replaces the stack at tile index i. A solid stack cannot be
// placed under a player.
func (r *Room) SetTile(i int, stack []uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if StackSolid(stack) && r.occ.Holders(i) > 0 {
		return ErrTileOccupied
	}
	if err := r.tiles.Set(i, stack); err != nil {
		return err
	}
	r.edited[i] = true
	r.changes.MarkTile(i)
	return nil
}

// Resync sends sessionID a fresh keyframe
func (r *Room) Resync(sessionID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[sessionID]
	if !ok {
		return ErrNotInRoom
	}
	r.sendKeyframe(c)
	return nil
}

// Snapshot returns the full state at the current sequence
func (r *Room) Snapshot() Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return BuildKeyframe(r.players, r.tiles, r.edited, r.seq, r.tick)
}

// Player returns a copy of one player record
func (r *Room) Player(sessionID string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[sessionID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// PlayerCount returns the number of players
func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Info summarizes the room for listings
func (r *Room) Info() RoomInfo {
	return RoomInfo{Name: r.name, Players: r.PlayerCount()}
}

// Seq returns the last shipped frame sequence
func (r *Room) Seq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

func (r *Room) sendKeyframe(b Broadcaster) {
	data, err := EncodeFrame(BuildKeyframe(r.players, r.tiles, r.edited, r.seq, r.tick))
	if err != nil {
		Log.Errorw("encode keyframe", "room", r.name, "err", err)
		return
	}
	b.SendBinary(data)
}

// update runs one tick: idle and respawn bookkeeping, then the flush
func (r *Room) update() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.tick++

	idle := r.policy.StepInterval * 2
	if idle <= 0 {
		idle = DefaultStepInterval * 2
	}
	for id, p := range r.players {
		if p.Moving && now.Sub(p.LastMove) >= idle {
			p.Moving = false
			r.changes.Mark(id, FieldMoving)
		}
		if !p.Alive && !p.RespawnAt.IsZero() && !now.Before(p.RespawnAt) {
			r.respawn(p)
		}
	}
	r.flush()
}

// flush ships pending changes as one patch. Nothing is sent when nothing changed.
func (r *Room) flush() {
	if r.changes.Empty() {
		return
	}
	f := r.changes.BuildPatch(r.players, r.tiles, r.seq, r.tick)
	r.changes.Reset()
	r.seq = f.Seq

	data, err := EncodeFrame(f)
	if err != nil {
		Log.Errorw("encode patch", "room", r.name, "seq", f.Seq, "err", err)
		return
	}
	for _, c := range r.clients {
		c.SendBinary(data)
	}
}

// broadcastMsg sends a message to every attached client
func (r *Room) broadcastMsg(msg Envelope) {
	for _, c := range r.clients {
		c.SendJSON(msg)
	}
}
