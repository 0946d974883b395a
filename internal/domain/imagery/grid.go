package imagery

import "fmt"

// Grid is a single-band raster over a monitored area. Values are indexed
// row-major; a pixel with Valid[i] == false carries no usable measurement
// (cloud, missing band data, undefined index) and must be skipped by every
// downstream stage. Grids are passed by value between pipeline stages and
// are never mutated after construction.
type Grid struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float64 `json:"values"`
	Valid  []bool    `json:"valid"`
}

// NewGrid allocates a grid with all pixels marked valid.
func NewGrid(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%d", width, height)
	}

	n := width * height
	valid := make([]bool, n)
	for i := range valid {
		valid[i] = true
	}

	return &Grid{
		Width:  width,
		Height: height,
		Values: make([]float64, n),
		Valid:  valid,
	}, nil
}

// Len returns the number of pixels in the grid.
func (g *Grid) Len() int {
	return g.Width * g.Height
}

// At returns the value at pixel index i and whether it is valid.
func (g *Grid) At(i int) (float64, bool) {
	if i < 0 || i >= len(g.Values) {
		return 0, false
	}
	return g.Values[i], g.Valid[i]
}

// Set assigns a valid value to pixel index i.
func (g *Grid) Set(i int, v float64) {
	g.Values[i] = v
	g.Valid[i] = true
}

// Mask marks pixel index i as carrying no usable measurement.
func (g *Grid) Mask(i int) {
	g.Values[i] = 0
	g.Valid[i] = false
}

// ValidCount returns the number of valid pixels.
func (g *Grid) ValidCount() int {
	count := 0
	for _, v := range g.Valid {
		if v {
			count++
		}
	}
	return count
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	values := make([]float64, len(g.Values))
	copy(values, g.Values)
	valid := make([]bool, len(g.Valid))
	copy(valid, g.Valid)

	return &Grid{
		Width:  g.Width,
		Height: g.Height,
		Values: values,
		Valid:  valid,
	}
}

// SameShape reports whether two grids have identical dimensions.
func (g *Grid) SameShape(other *Grid) bool {
	return other != nil && g.Width == other.Width && g.Height == other.Height
}
