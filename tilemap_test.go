package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestTileMapIndexCoords(t *testing.T) {
	m := NewTileMap(60, 40, TileGrass)
	i := m.Index(7, 3)
	if i != 3*60+7 {
		t.Errorf("Index(7,3) = %d, want %d", i, 3*60+7)
	}
	x, y := m.Coords(i)
	if x != 7 || y != 3 {
		t.Errorf("Coords(%d) = (%d,%d), want (7,3)", i, x, y)
	}
	if m.In(60, 0) || m.In(0, 40) || m.In(-1, 0) {
		t.Error("In accepted an out-of-range tile")
	}
	if !m.In(59, 39) {
		t.Error("In rejected the last tile")
	}
}

func TestTileMapSolid(t *testing.T) {
	m := NewTileMap(4, 4, TileGrass)
	if m.IsSolid(m.Index(1, 1)) {
		t.Error("grass should not be solid")
	}
	if err := m.Set(m.Index(1, 1), []uint16{TileGrass, TileWall}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !m.IsSolid(m.Index(1, 1)) {
		t.Error("a wall anywhere in the stack should block")
	}
	if m.Walkable(1, 1) {
		t.Error("walled tile should not be walkable")
	}
	if !m.IsSolid(-1) || !m.IsSolid(16) {
		t.Error("out-of-range indices should count as solid")
	}
	m.Set(m.Index(2, 2), []uint16{999})
	if m.IsSolid(m.Index(2, 2)) {
		t.Error("unknown tile ids should be walkable")
	}
}

func TestTileMapSetRejectsBadInput(t *testing.T) {
	m := NewTileMap(4, 4, TileGrass)
	if err := m.Set(99, []uint16{TileGrass}); !errors.Is(err, ErrInvalidMap) {
		t.Errorf("expected ErrInvalidMap for bad index, got %v", err)
	}
	if err := m.Set(0, nil); !errors.Is(err, ErrInvalidMap) {
		t.Errorf("expected ErrInvalidMap for empty stack, got %v", err)
	}
	if err := m.Set(0, make([]uint16, maxStackDepth+1)); !errors.Is(err, ErrInvalidMap) {
		t.Errorf("expected ErrInvalidMap for deep stack, got %v", err)
	}
}

func TestTileMapStackIsCopy(t *testing.T) {
	m := NewTileMap(2, 2, TileGrass)
	s := m.Stack(0)
	s[0] = TileWall
	if m.IsSolid(0) {
		t.Error("mutating a returned stack changed the map")
	}
}

func TestTileMapChunks(t *testing.T) {
	m := DefaultMap(DefaultMapWidth, DefaultMapHeight, 1)
	chunks := m.Chunks(MapChunkSize)
	if len(chunks) != 6 {
		t.Fatalf("expected 6 chunks for a 60x60 map, got %d", len(chunks))
	}
	next := 0
	for _, c := range chunks {
		for _, tc := range c {
			if tc.I != next {
				t.Fatalf("expected index %d, got %d", next, tc.I)
			}
			next++
		}
	}
	if next != 3600 {
		t.Errorf("expected 3600 tiles, got %d", next)
	}
}

func TestDefaultMapDeterministic(t *testing.T) {
	a := DefaultMap(60, 60, 42)
	b := DefaultMap(60, 60, 42)
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different maps")
	}
	c := DefaultMap(60, 60, 43)
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds produced identical maps")
	}
}

func TestDefaultMapLayout(t *testing.T) {
	m := DefaultMap(60, 60, 7)
	if err := m.Validate(); err != nil {
		t.Fatalf("default map invalid: %v", err)
	}
	for x := 0; x < 60; x++ {
		if m.Walkable(x, 0) || m.Walkable(x, 59) {
			t.Fatalf("border at x=%d is walkable", x)
		}
	}
	cx, cy := 30, 30
	if got := m.Stack(m.Index(cx, cy)); !reflect.DeepEqual(got, []uint16{TileStone}) {
		t.Errorf("centre should be stone road, got %v", got)
	}
	for y := cy - 3; y <= cy+3; y++ {
		for x := cx - 3; x <= cx+3; x++ {
			if !m.Walkable(x, y) {
				t.Errorf("spawn area tile (%d,%d) is blocked", x, y)
			}
		}
	}
}

func TestTileMapClone(t *testing.T) {
	m := NewTileMap(3, 3, TileGrass)
	c := m.Clone()
	c.Set(0, []uint16{TileWall})
	if m.IsSolid(0) {
		t.Error("clone shares tile storage with the original")
	}
}

func TestLoadMap(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	os.WriteFile(good, []byte(`{"width":2,"height":1,"tiles":[[1],[1,2]]}`), 0o644)
	m, err := LoadMap(good)
	if err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
	if m.Width != 2 || m.Height != 1 || !m.IsSolid(1) {
		t.Errorf("unexpected map: %+v", m)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"width":2,"height":2,"tiles":[[1]]}`), 0o644)
	if _, err := LoadMap(bad); !errors.Is(err, ErrInvalidMap) {
		t.Errorf("expected ErrInvalidMap, got %v", err)
	}

	junk := filepath.Join(dir, "junk.json")
	os.WriteFile(junk, []byte(`not json`), 0o644)
	if _, err := LoadMap(junk); !errors.Is(err, ErrInvalidMap) {
		t.Errorf("expected ErrInvalidMap for junk, got %v", err)
	}

	if _, err := LoadMap(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
