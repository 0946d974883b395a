package detection

import "fmt"

// Mask is a boolean pixel mask over an observation grid.
type Mask struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bits   []bool `json:"bits"`
}

// NewMask allocates an all-false mask.
func NewMask(width, height int) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mask dimensions must be positive, got %dx%d", width, height)
	}
	return &Mask{
		Width:  width,
		Height: height,
		Bits:   make([]bool, width*height),
	}, nil
}

// Len returns the number of pixels covered by the mask.
func (m *Mask) Len() int {
	return m.Width * m.Height
}

// Count returns the number of flagged pixels.
func (m *Mask) Count() int {
	count := 0
	for _, b := range m.Bits {
		if b {
			count++
		}
	}
	return count
}

// Set flags pixel index i.
func (m *Mask) Set(i int) {
	m.Bits[i] = true
}

// IsSet reports whether pixel index i is flagged.
func (m *Mask) IsSet(i int) bool {
	return i >= 0 && i < len(m.Bits) && m.Bits[i]
}

// SameShape reports whether two masks share dimensions.
func (m *Mask) SameShape(other *Mask) bool {
	return other != nil && m.Width == other.Width && m.Height == other.Height
}

// And returns the intersection of two masks.
func (m *Mask) And(other *Mask) (*Mask, error) {
	if !m.SameShape(other) {
		return nil, fmt.Errorf("mask shapes differ: %dx%d vs %dx%d", m.Width, m.Height, other.Width, other.Height)
	}
	out, err := NewMask(m.Width, m.Height)
	if err != nil {
		return nil, err
	}
	for i := range m.Bits {
		out.Bits[i] = m.Bits[i] && other.Bits[i]
	}
	return out, nil
}

// Or returns the union of two masks.
func (m *Mask) Or(other *Mask) (*Mask, error) {
	if !m.SameShape(other) {
		return nil, fmt.Errorf("mask shapes differ: %dx%d vs %dx%d", m.Width, m.Height, other.Width, other.Height)
	}
	out, err := NewMask(m.Width, m.Height)
	if err != nil {
		return nil, err
	}
	for i := range m.Bits {
		out.Bits[i] = m.Bits[i] || other.Bits[i]
	}
	return out, nil
}
