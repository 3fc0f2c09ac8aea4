package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120 // the mobile joystick sends every frame
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	sessionID  string // per-connection id, also the player id in a room
	room       string // "" when not in a room
	wantRoom   string // from ?room= on the upgrade request
	remoteAddr string
	msgCount   int
	msgResetAt time.Time

	// Auth state
	accountID int64  // 0 = guest
	username  string // "" = guest
}

// NewClient creates a new Client with a fresh session id
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr, wantRoom string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		sessionID:  GenerateUUID(),
		wantRoom:   wantRoom,
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Warnw("ws read error", "sid", c.sessionID, "err", err)
			}
			break
		}

		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			Log.Warnw("rate limit exceeded, disconnecting", "sid", c.sessionID, "ip", c.remoteAddr)
			break
		}

		if msgType != websocket.TextMessage {
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF prefix from SendBinary; JSON never starts with it
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		Log.Errorw("marshal error", "err", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		Log.Warnw("send queue full, dropping message", "sid", c.sessionID)
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// A dropped frame shows up client-side as a sequence gap and is repaired by sync.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
		Log.Warnw("send queue full, dropping frame", "sid", c.sessionID)
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		Log.Debugw("unmarshal error", "sid", c.sessionID, "err", err)
		return
	}

	switch env.T {
	case MsgList:
		c.SendJSON(Envelope{T: MsgRooms, Data: c.hub.rooms.List()})
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgMover, MsgMove:
		c.handleMove(env.D)
	case MsgAttack:
		c.handleAttack(env.D)
	case MsgLeave:
		c.hub.leaveRoom(c)
	case MsgSync:
		c.handleSync()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	}
}

func (c *Client) currentRoom() *Room {
	if c.room == "" {
		return nil
	}
	return c.hub.rooms.Get(c.room)
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("bad join")
			return
		}
	}
	if c.room != "" {
		c.sendError("already in a room")
		return
	}
	if msg.Token != "" && c.accountID == 0 {
		if !c.authenticate(msg.Token) {
			return
		}
	}

	opts := JoinOptions{Name: msg.Name, Skin: msg.Skin, AccountID: c.accountID}
	if c.accountID != 0 {
		if !c.hub.SetOnline(c.accountID, c) {
			c.sendError("account already playing")
			return
		}
		c.loadCharacter(&opts)
	}

	roomName := msg.Room
	if roomName == "" {
		roomName = c.wantRoom
	}
	r, p, err := c.hub.rooms.Join(roomName, c.sessionID, opts)
	if err != nil {
		if c.accountID != 0 {
			c.hub.SetOffline(c.accountID)
		}
		switch {
		case errors.Is(err, ErrRoomFull):
			c.sendError("room full")
		case errors.Is(err, ErrTooManyRooms):
			c.sendError("too many active rooms")
		default:
			Log.Warnw("join failed", "sid", c.sessionID, "err", err)
			c.sendError("cannot join room")
		}
		return
	}
	c.room = r.Name()

	c.SendJSON(Envelope{T: MsgJoined, Data: JoinedMsg{Room: r.Name(), SID: p.ID}})
	if err := r.Attach(c.sessionID, c); err != nil {
		Log.Errorw("attach failed", "sid", c.sessionID, "room", r.Name(), "err", err)
	}
}

// loadCharacter fills opts from the account's saved character, if any
func (c *Client) loadCharacter(opts *JoinOptions) {
	if c.hub.db == nil {
		return
	}
	ch, err := c.hub.db.LoadCharacter(c.accountID)
	if err != nil {
		Log.Errorw("load character", "account", c.accountID, "err", err)
		return
	}
	if opts.Name == "" {
		opts.Name = c.username
	}
	if ch == nil {
		return
	}
	if opts.Skin == 0 {
		opts.Skin = ch.Skin
	}
	opts.Resume = &Spawn{X: ch.X, Y: ch.Y, HP: ch.HP}
}

func (c *Client) handleMove(data json.RawMessage) {
	r := c.currentRoom()
	if r == nil {
		return
	}
	var msg MoveMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	r.Move(c.sessionID, MoveRequest{X: msg.X, Y: msg.Y, Dir: msg.Dir})
}

func (c *Client) handleAttack(data json.RawMessage) {
	r := c.currentRoom()
	if r == nil {
		return
	}
	var msg AttackMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if _, err := r.Attack(c.sessionID, msg.Target); err != nil {
		if errors.Is(err, ErrAttackCooldown) {
			return
		}
		c.sendError(err.Error())
	}
}

func (c *Client) handleSync() {
	r := c.currentRoom()
	if r == nil {
		return
	}
	if err := r.Resync(c.sessionID); err != nil {
		Log.Debugw("resync failed", "sid", c.sessionID, "err", err)
	}
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts disabled")
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.setAuth(id, msg.Username, token)
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts disabled")
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.setAuth(id, msg.Username, token)
}

func (c *Client) handleAuth(data json.RawMessage) {
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.authenticate(msg.Token)
}

// authenticate validates a token and reports whether the client is now
// logged in. Failures are sent to the client.
func (c *Client) authenticate(token string) bool {
	if c.hub.auth == nil {
		c.sendError("accounts disabled")
		return false
	}
	id, username, err := c.hub.auth.ValidateToken(token)
	if err != nil {
		c.sendError(ErrInvalidToken.Error())
		return false
	}
	c.setAuth(id, username, token)
	return true
}

func (c *Client) setAuth(id int64, username, token string) {
	if c.room != "" {
		c.sendError("leave the room before switching accounts")
		return
	}
	c.accountID = id
	c.username = username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: username,
		PlayerID: id,
	}})
}
