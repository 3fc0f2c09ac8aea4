package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin     = "join"
	MsgMover    = "mover" // move intent, name used by the mobile client
	MsgMove     = "move"  // alias of mover
	MsgAttack   = "attack"
	MsgLeave    = "leave"
	MsgSync     = "sync" // request a fresh keyframe after a sequence gap
	MsgList     = "list"
	MsgRegister = "register"
	MsgLogin    = "login"
	MsgAuth     = "auth"
)

// Server -> Client message types
const (
	MsgJoined     = "joined"
	MsgWelcome    = "welcome"
	MsgMapChunk   = "map_chunk"
	MsgCorrection = "correction"
	MsgCombatText = "combat_text"
	MsgRooms      = "rooms"
	MsgAuthOK     = "auth_ok"
	MsgError      = "error"
)

// Binary frame kinds
const (
	FrameKeyframe uint8 = 0
	FramePatch    uint8 = 1
)

// Envelope wraps all outgoing text messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope decodes the type first and keeps the payload raw for the handler
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinMsg asks to join (or create) a room
type JoinMsg struct {
	Name  string `json:"name"`
	Room  string `json:"room"`
	Skin  int    `json:"skin"`
	Token string `json:"token,omitempty"`
}

// MoveMsg is a move intent toward a tile. Dir is optional.
type MoveMsg struct {
	X   int  `json:"x"`
	Y   int  `json:"y"`
	Dir *int `json:"dir,omitempty"`
}

// AttackMsg names the session id of the target
type AttackMsg struct {
	Target string `json:"target"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates with username and password
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg authenticates with a previously issued token
type AuthMsg struct {
	Token string `json:"token"`
}

// JoinedMsg confirms the room and the session id
type JoinedMsg struct {
	Room string `json:"room"`
	SID  string `json:"sid"`
}

// WelcomeMsg tells a new player where they are and how big the map is
type WelcomeMsg struct {
	ID       string `json:"id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Width    int    `json:"w"`
	Height   int    `json:"h"`
	TileSize int    `json:"ts"`
	Seq      uint64 `json:"seq"`
}

// CorrectionMsg returns the last-known-good position after a rejected move
type CorrectionMsg struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Dir    int    `json:"dir"`
	Reason string `json:"reason"`
}

// CombatTextMsg is floating damage text shown at a tile
type CombatTextMsg struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Val    string `json:"val"`
	Target string `json:"target"`
}

// RoomInfo is used in the room list
type RoomInfo struct {
	Name    string `json:"name"`
	Players int    `json:"players"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"pid"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// PlayerState is the full replicated view of one player
type PlayerState struct {
	ID     string `json:"id" msgpack:"id"`
	Name   string `json:"nombre" msgpack:"n"`
	X      int    `json:"x" msgpack:"x"`
	Y      int    `json:"y" msgpack:"y"`
	Dir    int    `json:"direction" msgpack:"d"`
	Skin   int    `json:"skin" msgpack:"s"`
	HP     int    `json:"hp" msgpack:"hp"`
	MaxHP  int    `json:"maxHp" msgpack:"mhp"`
	Moving bool   `json:"isMoving" msgpack:"mv"`
	Alive  bool   `json:"alive" msgpack:"a"`
}

// PlayerDelta carries only the fields named in Mask
type PlayerDelta struct {
	ID     string    `msgpack:"id"`
	Mask   FieldMask `msgpack:"m"`
	Name   string    `msgpack:"n,omitempty"`
	X      int       `msgpack:"x,omitempty"`
	Y      int       `msgpack:"y,omitempty"`
	Dir    int       `msgpack:"d,omitempty"`
	Skin   int       `msgpack:"s,omitempty"`
	HP     int       `msgpack:"hp,omitempty"`
	MaxHP  int       `msgpack:"mhp,omitempty"`
	Moving bool      `msgpack:"mv,omitempty"`
	Alive  bool      `msgpack:"a,omitempty"`
}

// Frame is the binary replication message. Kind selects keyframe or patch;
// a keyframe carries Players, a patch carries Deltas, Removed and Tiles.
type Frame struct {
	Kind    uint8         `msgpack:"k"`
	Seq     uint64        `msgpack:"seq"`
	Base    uint64        `msgpack:"base,omitempty"`
	Tick    uint64        `msgpack:"tick"`
	Players []PlayerState `msgpack:"p,omitempty"`
	Deltas  []PlayerDelta `msgpack:"dp,omitempty"`
	Removed []string      `msgpack:"rm,omitempty"`
	Tiles   []TileChunk   `msgpack:"t,omitempty"`
}
