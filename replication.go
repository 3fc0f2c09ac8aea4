package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// FieldMask marks which player fields changed during a tick
type FieldMask uint8

const (
	FieldPos FieldMask = 1 << iota
	FieldDir
	FieldHP
	FieldMoving
	FieldLook // name and skin
	FieldAlive

	FieldAll = FieldPos | FieldDir | FieldHP | FieldMoving | FieldLook | FieldAlive
)

var ErrSequenceGap = errors.New("patch does not follow the mirrored sequence")

// ChangeSet accumulates mutations between two broadcasts
type ChangeSet struct {
	dirty   map[string]FieldMask
	removed map[string]bool
	tiles   map[int]bool
}

// NewChangeSet returns an empty change set
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		dirty:   make(map[string]FieldMask),
		removed: make(map[string]bool),
		tiles:   make(map[int]bool),
	}
}

// Mark records that fields of player id changed
func (c *ChangeSet) Mark(id string, fields FieldMask) {
	c.dirty[id] |= fields
}

// Add records a new player. A re-add after a removal in the same window is
// still shipped as a full add.
func (c *ChangeSet) Add(id string) {
	delete(c.removed, id)
	c.dirty[id] = FieldAll
}

// Remove records a player leaving. A pending add is dropped but the removal
// still ships: a keyframe sent mid-window may already show the player.
func (c *ChangeSet) Remove(id string) {
	delete(c.dirty, id)
	c.removed[id] = true
}

// MarkTile records a tile stack change
func (c *ChangeSet) MarkTile(i int) {
	c.tiles[i] = true
}

// Empty reports whether nothing changed
func (c *ChangeSet) Empty() bool {
	return len(c.dirty) == 0 && len(c.removed) == 0 && len(c.tiles) == 0
}

// Reset clears the set for the next window
func (c *ChangeSet) Reset() {
	clear(c.dirty)
	clear(c.removed)
	clear(c.tiles)
}

// BuildPatch turns the change set into a patch frame. Output is sorted so
// the same changes always encode to the same bytes.
func (c *ChangeSet) BuildPatch(players map[string]*Player, tiles *TileMap, base, tick uint64) Frame {
	f := Frame{Kind: FramePatch, Seq: base + 1, Base: base, Tick: tick}

	ids := make([]string, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p, ok := players[id]
		if !ok {
			continue
		}
		f.Deltas = append(f.Deltas, deltaFor(p, c.dirty[id]))
	}

	for id := range c.removed {
		f.Removed = append(f.Removed, id)
	}
	sort.Strings(f.Removed)

	idx := make([]int, 0, len(c.tiles))
	for i := range c.tiles {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		f.Tiles = append(f.Tiles, TileChunk{I: i, S: tiles.Stack(i)})
	}
	return f
}

func deltaFor(p *Player, mask FieldMask) PlayerDelta {
	d := PlayerDelta{ID: p.ID, Mask: mask}
	if mask&FieldPos != 0 {
		d.X, d.Y = p.X, p.Y
	}
	if mask&FieldDir != 0 {
		d.Dir = p.Dir
	}
	if mask&FieldHP != 0 {
		d.HP, d.MaxHP = p.HP, p.MaxHP
	}
	if mask&FieldMoving != 0 {
		d.Moving = p.Moving
	}
	if mask&FieldLook != 0 {
		d.Name, d.Skin = p.Name, p.Skin
	}
	if mask&FieldAlive != 0 {
		d.Alive = p.Alive
	}
	return d
}

// BuildKeyframe captures the full player set at seq plus every tile edited
// since the map was loaded. Unedited tiles reach clients via map_chunk.
func BuildKeyframe(players map[string]*Player, tiles *TileMap, edited map[int]bool, seq, tick uint64) Frame {
	f := Frame{Kind: FrameKeyframe, Seq: seq, Tick: tick, Players: make([]PlayerState, 0, len(players))}
	for _, p := range players {
		f.Players = append(f.Players, p.ToState())
	}
	sort.Slice(f.Players, func(i, j int) bool { return f.Players[i].ID < f.Players[j].ID })

	idx := make([]int, 0, len(edited))
	for i := range edited {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		f.Tiles = append(f.Tiles, TileChunk{I: i, S: tiles.Stack(i)})
	}
	return f
}

// EncodeFrame marshals a frame for a binary websocket message
func EncodeFrame(f Frame) ([]byte, error) {
	return msgpack.Marshal(&f)
}

// DecodeFrame is the inverse of EncodeFrame
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// Mirror is a client-side replica of a room, rebuilt from frames
type Mirror struct {
	Seq     uint64
	Synced  bool
	Players map[string]PlayerState
	Tiles   map[int][]uint16 // edited tiles only
}

// NewMirror returns an unsynced mirror; it accepts patches only after a keyframe
func NewMirror() *Mirror {
	return &Mirror{
		Players: make(map[string]PlayerState),
		Tiles:   make(map[int][]uint16),
	}
}

// Apply folds a frame into the mirror. A patch whose base is not the
// mirrored sequence returns ErrSequenceGap and leaves the mirror untouched.
func (m *Mirror) Apply(f Frame) error {
	switch f.Kind {
	case FrameKeyframe:
		clear(m.Players)
		for _, p := range f.Players {
			m.Players[p.ID] = p
		}
		clear(m.Tiles)
		for _, t := range f.Tiles {
			m.Tiles[t.I] = t.S
		}
		m.Seq = f.Seq
		m.Synced = true
		return nil
	case FramePatch:
		if !m.Synced || f.Base != m.Seq {
			return fmt.Errorf("%w: have %d, patch base %d", ErrSequenceGap, m.Seq, f.Base)
		}
		for _, id := range f.Removed {
			delete(m.Players, id)
		}
		for _, d := range f.Deltas {
			p := m.Players[d.ID]
			p.ID = d.ID
			applyDelta(&p, d)
			m.Players[d.ID] = p
		}
		for _, t := range f.Tiles {
			m.Tiles[t.I] = t.S
		}
		m.Seq = f.Seq
		return nil
	default:
		return fmt.Errorf("unknown frame kind %d", f.Kind)
	}
}

func applyDelta(p *PlayerState, d PlayerDelta) {
	if d.Mask&FieldPos != 0 {
		p.X, p.Y = d.X, d.Y
	}
	if d.Mask&FieldDir != 0 {
		p.Dir = d.Dir
	}
	if d.Mask&FieldHP != 0 {
		p.HP, p.MaxHP = d.HP, d.MaxHP
	}
	if d.Mask&FieldMoving != 0 {
		p.Moving = d.Moving
	}
	if d.Mask&FieldLook != 0 {
		p.Name, p.Skin = d.Name, d.Skin
	}
	if d.Mask&FieldAlive != 0 {
		p.Alive = d.Alive
	}
}
