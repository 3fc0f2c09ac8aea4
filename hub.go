package main

import "sync"

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub manages all connected clients and routes them to rooms
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	rooms      *RoomManager

	// Connection limiting, accessed from HTTP handlers
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	// Accounts; both nil when persistence is off
	db   *DB
	auth *Auth

	// Accounts currently in a room: accountID -> client
	onlineMu    sync.RWMutex
	onlineUsers map[int64]*Client
}

// NewHub creates a Hub. db and auth may be nil.
func NewHub(rooms *RoomManager, db *DB, auth *Auth) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client, 64),
		unregister:  make(chan *Client, 64),
		rooms:       rooms,
		ipConns:     make(map[string]int),
		db:          db,
		auth:        auth,
		onlineUsers: make(map[int64]*Client),
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			// Leave the room first so the room stops writing to client.send
			h.leaveRoom(client)
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			Log.Debugw("client disconnected", "sid", client.sessionID, "ip", client.remoteAddr)
		}
	}
}

// leaveRoom removes the client's player from its room and saves the
// character of a logged-in account.
func (h *Hub) leaveRoom(c *Client) {
	if c.room == "" {
		return
	}
	p, ok := h.rooms.RemovePlayer(c.room, c.sessionID)
	c.room = ""
	if !ok || p.AccountID == 0 {
		return
	}
	h.SetOffline(p.AccountID)
	h.saveCharacter(p)
}

// Shutdown takes every player out of the rooms, saves logged-in characters
// and closes all connections. The room manager and DB stay open.
func (h *Hub) Shutdown() {
	saved := 0
	for _, p := range h.rooms.Evict() {
		if p.AccountID == 0 {
			continue
		}
		h.SetOffline(p.AccountID)
		if h.saveCharacter(p) {
			saved++
		}
	}

	h.mu.RLock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.RUnlock()
	Log.Infow("hub shut down", "saved", saved)
}

// saveCharacter persists an account's character and reports success
func (h *Hub) saveCharacter(p Player) bool {
	if h.db == nil || p.AccountID == 0 {
		return false
	}
	err := h.db.SaveCharacter(CharacterRow{
		AccountID: p.AccountID,
		Name:      p.Name,
		X:         p.X,
		Y:         p.Y,
		HP:        p.HP,
		Skin:      p.Skin,
	})
	if err != nil {
		Log.Errorw("save character", "account", p.AccountID, "err", err)
		return false
	}
	return true
}

// SetOnline marks an account as playing. It reports false if the account
// is already in a room on another connection.
func (h *Hub) SetOnline(accountID int64, client *Client) bool {
	h.onlineMu.Lock()
	defer h.onlineMu.Unlock()
	if cur, ok := h.onlineUsers[accountID]; ok && cur != client {
		return false
	}
	h.onlineUsers[accountID] = client
	return true
}

// SetOffline removes an account from online tracking
func (h *Hub) SetOffline(accountID int64) {
	h.onlineMu.Lock()
	defer h.onlineMu.Unlock()
	delete(h.onlineUsers, accountID)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
