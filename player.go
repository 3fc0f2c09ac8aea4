package main

import "time"

const (
	PlayerMaxHP = 100
	DefaultSkin = 7
	DefaultName = "Aventurero"
	maxNameLen  = 16
	maxSkinID   = 255
)

// Facing directions, numbered the way the client's walk animations are
const (
	DirDown  = 0
	DirLeft  = 1
	DirRight = 2
	DirUp    = 3
)

// Player is the authoritative record for one connection in a room
type Player struct {
	ID     string // session id
	Name   string
	X, Y   int
	Dir    int
	Skin   int
	HP     int
	MaxHP  int
	Moving bool
	Alive  bool

	AccountID  int64 // 0 = guest
	LastMove   time.Time
	LastAttack time.Time
	RespawnAt  time.Time
}

// NewPlayer creates a player standing at (x, y)
func NewPlayer(id, name string, skin, x, y int) *Player {
	if skin <= 0 || skin > maxSkinID {
		skin = DefaultSkin
	}
	return &Player{
		ID:    id,
		Name:  name,
		X:     x,
		Y:     y,
		Dir:   DirDown,
		Skin:  skin,
		HP:    PlayerMaxHP,
		MaxHP: PlayerMaxHP,
		Alive: true,
	}
}

// TakeDamage reduces HP and returns true if the player died
func (p *Player) TakeDamage(dmg int, now time.Time, respawnDelay time.Duration) bool {
	if !p.Alive || dmg <= 0 {
		return false
	}
	p.HP -= dmg
	if p.HP <= 0 {
		p.HP = 0
		p.Alive = false
		p.Moving = false
		p.RespawnAt = now.Add(respawnDelay)
		return true
	}
	return false
}

// Respawn restores the player at (x, y) with full HP
func (p *Player) Respawn(x, y int) {
	p.X = x
	p.Y = y
	p.HP = p.MaxHP
	p.Alive = true
	p.Moving = false
	p.Dir = DirDown
	p.RespawnAt = time.Time{}
}

// ToState converts to the replicated view
func (p *Player) ToState() PlayerState {
	return PlayerState{
		ID:     p.ID,
		Name:   p.Name,
		X:      p.X,
		Y:      p.Y,
		Dir:    p.Dir,
		Skin:   p.Skin,
		HP:     p.HP,
		MaxHP:  p.MaxHP,
		Moving: p.Moving,
		Alive:  p.Alive,
	}
}
