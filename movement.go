package main

import (
	"fmt"
	"time"
)

const (
	DefaultMaxStep      = 1
	DefaultStepInterval = 150 * time.Millisecond
)

// Move rejection reasons, sent to clients in correction messages
const (
	ReasonNotFound    = "not_found"
	ReasonDead        = "dead"
	ReasonOutOfBounds = "out_of_bounds"
	ReasonTooFar      = "too_far"
	ReasonTooFast     = "too_fast"
	ReasonBlocked     = "blocked"
	ReasonOccupied    = "occupied"
)

// MovePolicy selects which checks a room applies to move intents
type MovePolicy struct {
	Validate        bool
	MaxStep         int // Chebyshev tiles per move; 0 disables the check
	StepInterval    time.Duration
	CheckSolid      bool
	CheckOccupied   bool
	CorrectOnReject bool
}

// DefaultMovePolicy validates everything and corrects the sender on reject
func DefaultMovePolicy() MovePolicy {
	return MovePolicy{
		Validate:        true,
		MaxStep:         DefaultMaxStep,
		StepInterval:    DefaultStepInterval,
		CheckSolid:      true,
		CheckOccupied:   true,
		CorrectOnReject: true,
	}
}

// MoveRequest is a client's intent to stand on (X, Y)
type MoveRequest struct {
	X, Y int
	Dir  *int
}

// MoveResult reports the outcome and the position the player ended up on
type MoveResult struct {
	Accepted bool
	Reason   string
	X, Y     int
	Dir      int
}

// MoveError is returned by ValidateMove for a rejected intent
type MoveError struct {
	Reason string
	X, Y   int
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move to (%d,%d) rejected: %s", e.X, e.Y, e.Reason)
}

// ValidateMove checks a move intent against the policy. It never mutates.
func ValidateMove(policy MovePolicy, tiles *TileMap, occ *Occupancy, p *Player, req MoveRequest, now time.Time) error {
	reject := func(reason string) error {
		return &MoveError{Reason: reason, X: req.X, Y: req.Y}
	}
	if p == nil {
		return reject(ReasonNotFound)
	}
	if !p.Alive {
		return reject(ReasonDead)
	}
	if !policy.Validate {
		return nil
	}
	if !tiles.In(req.X, req.Y) {
		return reject(ReasonOutOfBounds)
	}
	if policy.MaxStep > 0 && Chebyshev(p.X, p.Y, req.X, req.Y) > policy.MaxStep {
		return reject(ReasonTooFar)
	}
	if policy.StepInterval > 0 && !p.LastMove.IsZero() && now.Sub(p.LastMove) < policy.StepInterval {
		return reject(ReasonTooFast)
	}
	i := tiles.Index(req.X, req.Y)
	if policy.CheckSolid && tiles.IsSolid(i) {
		return reject(ReasonBlocked)
	}
	if policy.CheckOccupied && !occ.Free(i, p.ID) {
		return reject(ReasonOccupied)
	}
	return nil
}

// DirectionFor derives facing from a step. Vertical wins on diagonals,
// matching how the client picks its walk animation.
func DirectionFor(dx, dy, fallback int) int {
	switch {
	case dy < 0:
		return DirUp
	case dy > 0:
		return DirDown
	case dx < 0:
		return DirLeft
	case dx > 0:
		return DirRight
	}
	return fallback
}

func validDir(d int) bool {
	return d >= DirDown && d <= DirUp
}
