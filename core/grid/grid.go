// Package grid renders the city map as a colored cell matrix for
// spectator clients. Snapshots are derived views: they are rebuilt from
// the stores on every tick and never fed back into dispatch state.
package grid

import (
	"fmt"
	"strings"

	"github.com/kmoreau/citycab/core/model"
	"github.com/kmoreau/citycab/core/store"
)

// Size is the side length of the square city map. Coordinates run from
// 1 to Size on both axes.
const Size = 20

// Color encodes what a cell shows.
type Color string

const (
	ColorEmpty    Color = ""
	ColorLocation Color = "yellow"
	ColorCustomer Color = "blue"
	ColorMoving   Color = "green"
	ColorStopped  Color = "red"
)

// Cell is one map square. Data lists the identifiers drawn on the cell,
// comma separated when entities overlap.
type Cell struct {
	Color Color  `json:"color,omitempty"`
	Data  string `json:"data,omitempty"`
}

func (c *Cell) add(color Color, id string) {
	c.Color = color
	if c.Data == "" {
		c.Data = id
		return
	}
	c.Data += "," + id
}

// Snapshot is a full rendering of the map at one instant.
type Snapshot struct {
	Cells [Size][Size]Cell `json:"cells"`
}

// At returns the cell at the given 1-based map coordinates.
func (s *Snapshot) At(x, y int) Cell {
	return s.Cells[y-1][x-1]
}

func inBounds(x, y int) bool {
	return x >= 1 && x <= Size && y >= 1 && y <= Size
}

// Builder renders snapshots from the live stores.
type Builder struct {
	taxis     store.TaxiStore
	customers store.CustomerStore
	locations store.LocationStore
}

// NewBuilder returns a Builder reading from the given stores.
func NewBuilder(taxis store.TaxiStore, customers store.CustomerStore, locations store.LocationStore) *Builder {
	return &Builder{taxis: taxis, customers: customers, locations: locations}
}

// Build renders the current state. Draw order is locations, then
// customers, then taxis, so a taxi drawn on an occupied cell keeps the
// taxi color while the cell data lists every occupant.
func (b *Builder) Build() Snapshot {
	var snap Snapshot
	for _, l := range b.locations.All() {
		if inBounds(l.X, l.Y) {
			snap.Cells[l.Y-1][l.X-1].add(ColorLocation, l.ID)
		}
	}
	for _, c := range b.customers.All() {
		if inBounds(c.X, c.Y) {
			snap.Cells[c.Y-1][c.X-1].add(ColorCustomer, c.ID)
		}
	}
	for _, t := range b.taxis.All() {
		if !inBounds(t.X, t.Y) {
			continue
		}
		color := ColorMoving
		if t.State == model.TaxiStopped {
			color = ColorStopped
		}
		snap.Cells[t.Y-1][t.X-1].add(color, t.ID)
	}
	return snap
}

// String renders the snapshot as a fixed-width text board, handy for
// terminal spectators and debugging.
func (s *Snapshot) String() string {
	var sb strings.Builder
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			c := s.Cells[y][x]
			if c.Data == "" {
				sb.WriteString(" . ")
				continue
			}
			id := c.Data
			if i := strings.IndexByte(id, ','); i >= 0 {
				id = id[:i]
			}
			sb.WriteString(fmt.Sprintf("%3s", id))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
