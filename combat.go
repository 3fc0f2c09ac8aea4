package main

import (
	"errors"
	"strconv"
	"time"
)

const (
	AttackRange    = 1 // Chebyshev tiles
	AttackCooldown = time.Second
	DamageMin      = 5
	DamageMax      = 15
	RespawnDelay   = 5 * time.Second
)

var (
	ErrAttackerDead   = errors.New("attacker is dead")
	ErrTargetNotFound = errors.New("target not found")
	ErrTargetDead     = errors.New("target is dead")
	ErrOutOfRange     = errors.New("target out of range")
	ErrAttackCooldown = errors.New("attack on cooldown")
)

// AttackResult describes a landed hit
type AttackResult struct {
	Target string
	Damage int
	HP     int
	Killed bool
}

// Attack makes attackerID hit targetID for a random amount of damage
func (r *Room) Attack(attackerID, targetID string) (AttackResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.players[attackerID]
	if !ok {
		return AttackResult{}, ErrNotInRoom
	}
	if !a.Alive {
		return AttackResult{}, ErrAttackerDead
	}
	t, ok := r.players[targetID]
	if !ok || targetID == attackerID {
		return AttackResult{}, ErrTargetNotFound
	}
	if !t.Alive {
		return AttackResult{}, ErrTargetDead
	}
	if Chebyshev(a.X, a.Y, t.X, t.Y) > AttackRange {
		return AttackResult{}, ErrOutOfRange
	}
	now := r.now()
	if !a.LastAttack.IsZero() && now.Sub(a.LastAttack) < AttackCooldown {
		return AttackResult{}, ErrAttackCooldown
	}

	a.LastAttack = now
	if dir := DirectionFor(t.X-a.X, t.Y-a.Y, a.Dir); dir != a.Dir {
		a.Dir = dir
		r.changes.Mark(attackerID, FieldDir)
	}

	dmg := r.rollDamage()
	killed := t.TakeDamage(dmg, now, RespawnDelay)
	mask := FieldHP
	if killed {
		mask |= FieldAlive | FieldMoving
		r.occ.Clear(r.tiles.Index(t.X, t.Y), targetID)
		r.events.Track(EventDeath, t.AccountID, r.name, a.Name)
		Log.Infow("player died", "room", r.name, "sid", targetID, "killer", attackerID)
	}
	r.changes.Mark(targetID, mask)

	r.broadcastMsg(Envelope{T: MsgCombatText, Data: CombatTextMsg{
		X:      t.X,
		Y:      t.Y,
		Val:    "-" + strconv.Itoa(dmg),
		Target: targetID,
	}})
	return AttackResult{Target: targetID, Damage: dmg, HP: t.HP, Killed: killed}, nil
}

func (r *Room) rollDamage() int {
	return DamageMin + r.rng.IntN(DamageMax-DamageMin+1)
}

// respawn revives p on the nearest free tile to the room spawn. If the map
// has no free tile the player stays dead until one opens up.
func (r *Room) respawn(p *Player) {
	x, y, ok := r.nearestFree(r.spawnX, r.spawnY, p.ID)
	if !ok {
		return
	}
	mask := FieldHP | FieldAlive | FieldMoving
	if x != p.X || y != p.Y {
		mask |= FieldPos
	}
	if p.Dir != DirDown {
		mask |= FieldDir
	}
	p.Respawn(x, y)
	r.occ.Put(r.tiles.Index(x, y), p.ID)
	r.changes.Mark(p.ID, mask)
}
