package main

// Occupancy indexes which sessions stand on which tile. It is a fixed-size
// grid over the tile map, one slot per cell. A cell normally holds at most
// one id; with move checks off several players may share it.
type Occupancy struct {
	width int
	cells [][]string
}

// NewOccupancy creates an empty index for a width x height map
func NewOccupancy(width, height int) *Occupancy {
	return &Occupancy{width: width, cells: make([][]string, width*height)}
}

// At returns the earliest session still standing on tile i, or ""
func (o *Occupancy) At(i int) string {
	if i < 0 || i >= len(o.cells) || len(o.cells[i]) == 0 {
		return ""
	}
	return o.cells[i][0]
}

// Holders returns how many sessions stand on tile i
func (o *Occupancy) Holders(i int) int {
	if i < 0 || i >= len(o.cells) {
		return 0
	}
	return len(o.cells[i])
}

// Free reports whether tile i is empty or held by id alone
func (o *Occupancy) Free(i int, id string) bool {
	if i < 0 || i >= len(o.cells) {
		return true
	}
	for _, cur := range o.cells[i] {
		if cur != id {
			return false
		}
	}
	return true
}

// Put places id on tile i
func (o *Occupancy) Put(i int, id string) {
	if i < 0 || i >= len(o.cells) {
		return
	}
	for _, cur := range o.cells[i] {
		if cur == id {
			return
		}
	}
	o.cells[i] = append(o.cells[i], id)
}

// Clear takes id off tile i. Other sessions on the tile stay.
func (o *Occupancy) Clear(i int, id string) {
	if i < 0 || i >= len(o.cells) {
		return
	}
	cell := o.cells[i]
	for k, cur := range cell {
		if cur == id {
			o.cells[i] = append(cell[:k:k], cell[k+1:]...)
			break
		}
	}
	if len(o.cells[i]) == 0 {
		o.cells[i] = nil
	}
}

// Move transfers id from one tile to another
func (o *Occupancy) Move(from, to int, id string) {
	o.Clear(from, id)
	o.Put(to, id)
}

// Count returns the number of occupied tiles
func (o *Occupancy) Count() int {
	n := 0
	for _, ids := range o.cells {
		if len(ids) > 0 {
			n++
		}
	}
	return n
}
