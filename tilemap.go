package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
)

// Tile ids understood by the client tileset
const (
	TileGrass uint16 = 1
	TileWall  uint16 = 2
	TileStone uint16 = 3
	TileWater uint16 = 4
	TileDirt  uint16 = 5
)

const (
	DefaultMapWidth  = 60
	DefaultMapHeight = 60
	MapChunkSize     = 600 // tiles per map_chunk message
	maxStackDepth    = 4
)

// TileDef describes what a tile id means to the server
type TileDef struct {
	Name  string
	Solid bool
}

// TileCatalog maps tile ids to their collision meaning. Unknown ids are walkable.
var TileCatalog = map[uint16]TileDef{
	TileGrass: {Name: "grass"},
	TileWall:  {Name: "wall", Solid: true},
	TileStone: {Name: "stone"},
	TileWater: {Name: "water", Solid: true},
	TileDirt:  {Name: "dirt"},
}

var ErrInvalidMap = errors.New("invalid map")

// TileMap is the shared grid. Cells are addressed by i = y*Width + x and hold
// a small stack of tile ids, ground first.
type TileMap struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Tiles  [][]uint16 `json:"tiles"`
}

// TileChunk is one entry of a map_chunk message
type TileChunk struct {
	I int      `json:"i" msgpack:"i"`
	S []uint16 `json:"s" msgpack:"s"`
}

// NewTileMap creates a map filled with a single ground tile
func NewTileMap(width, height int, ground uint16) *TileMap {
	m := &TileMap{Width: width, Height: height, Tiles: make([][]uint16, width*height)}
	for i := range m.Tiles {
		m.Tiles[i] = []uint16{ground}
	}
	return m
}

// In reports whether (x, y) lies on the map
func (m *TileMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

// Index returns the linear index of (x, y); callers check In first
func (m *TileMap) Index(x, y int) int {
	return y*m.Width + x
}

// Coords is the inverse of Index
func (m *TileMap) Coords(i int) (int, int) {
	return i % m.Width, i / m.Width
}

// Stack returns a copy of the tile stack at i
func (m *TileMap) Stack(i int) []uint16 {
	if i < 0 || i >= len(m.Tiles) {
		return nil
	}
	return append([]uint16(nil), m.Tiles[i]...)
}

// Set replaces the stack at i
func (m *TileMap) Set(i int, stack []uint16) error {
	if i < 0 || i >= len(m.Tiles) {
		return fmt.Errorf("%w: tile index %d out of range", ErrInvalidMap, i)
	}
	if len(stack) == 0 || len(stack) > maxStackDepth {
		return fmt.Errorf("%w: stack depth %d", ErrInvalidMap, len(stack))
	}
	m.Tiles[i] = append([]uint16(nil), stack...)
	return nil
}

// IsSolid reports whether any tile in the stack at i blocks movement
func (m *TileMap) IsSolid(i int) bool {
	if i < 0 || i >= len(m.Tiles) {
		return true
	}
	return StackSolid(m.Tiles[i])
}

// StackSolid reports whether any tile id in stack blocks movement
func StackSolid(stack []uint16) bool {
	for _, id := range stack {
		if TileCatalog[id].Solid {
			return true
		}
	}
	return false
}

// Walkable reports whether (x, y) is on the map and not solid
func (m *TileMap) Walkable(x, y int) bool {
	return m.In(x, y) && !m.IsSolid(m.Index(x, y))
}

// Chunks splits the map into map_chunk payloads of at most size tiles
func (m *TileMap) Chunks(size int) [][]TileChunk {
	if size <= 0 {
		size = MapChunkSize
	}
	var out [][]TileChunk
	for start := 0; start < len(m.Tiles); start += size {
		end := min(start+size, len(m.Tiles))
		chunk := make([]TileChunk, 0, end-start)
		for i := start; i < end; i++ {
			chunk = append(chunk, TileChunk{I: i, S: m.Stack(i)})
		}
		out = append(out, chunk)
	}
	return out
}

// Clone returns a deep copy, so rooms never share a grid
func (m *TileMap) Clone() *TileMap {
	c := &TileMap{Width: m.Width, Height: m.Height, Tiles: make([][]uint16, len(m.Tiles))}
	for i, s := range m.Tiles {
		c.Tiles[i] = append([]uint16(nil), s...)
	}
	return c
}

// Validate checks the dimensions and every stack
func (m *TileMap) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidMap, m.Width, m.Height)
	}
	if len(m.Tiles) != m.Width*m.Height {
		return fmt.Errorf("%w: %d tiles for %dx%d", ErrInvalidMap, len(m.Tiles), m.Width, m.Height)
	}
	for i, s := range m.Tiles {
		if len(s) == 0 || len(s) > maxStackDepth {
			return fmt.Errorf("%w: tile %d has stack depth %d", ErrInvalidMap, i, len(s))
		}
	}
	return nil
}

// LoadMap reads a JSON map file
func LoadMap(path string) (*TileMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map: %w", err)
	}
	var m TileMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DefaultMap builds the deterministic starter map: grass inside a wall
// border, a stone cross through the centre and seeded wall and water
// clusters that keep clear of the spawn area.
func DefaultMap(width, height int, seed int64) *TileMap {
	m := NewTileMap(width, height, TileGrass)
	cx, cy := width/2, height/2

	for x := 0; x < width; x++ {
		m.Tiles[m.Index(x, 0)] = []uint16{TileGrass, TileWall}
		m.Tiles[m.Index(x, height-1)] = []uint16{TileGrass, TileWall}
	}
	for y := 0; y < height; y++ {
		m.Tiles[m.Index(0, y)] = []uint16{TileGrass, TileWall}
		m.Tiles[m.Index(width-1, y)] = []uint16{TileGrass, TileWall}
	}
	for x := 1; x < width-1; x++ {
		m.Tiles[m.Index(x, cy)] = []uint16{TileStone}
	}
	for y := 1; y < height-1; y++ {
		m.Tiles[m.Index(cx, y)] = []uint16{TileStone}
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	clusters := (width * height) / 150
	for n := 0; n < clusters; n++ {
		x := 2 + rng.IntN(max(1, width-4))
		y := 2 + rng.IntN(max(1, height-4))
		if Chebyshev(x, y, cx, cy) < 6 || x == cx || y == cy {
			continue
		}
		top := TileWall
		if rng.IntN(3) == 0 {
			top = TileWater
		}
		size := 1 + rng.IntN(3)
		for dy := 0; dy < size; dy++ {
			for dx := 0; dx < size; dx++ {
				tx, ty := x+dx, y+dy
				if tx >= width-1 || ty >= height-1 || tx == cx || ty == cy {
					continue
				}
				if top == TileWater {
					m.Tiles[m.Index(tx, ty)] = []uint16{TileWater}
				} else {
					m.Tiles[m.Index(tx, ty)] = []uint16{TileGrass, TileWall}
				}
			}
		}
	}
	return m
}
