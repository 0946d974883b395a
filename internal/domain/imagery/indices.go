package imagery

import "fmt"

// IndexKind identifies a normalized spectral index.
type IndexKind string

const (
	IndexNDVI IndexKind = "ndvi" // vegetation: (NIR - Red) / (NIR + Red)
	IndexNBR  IndexKind = "nbr"  // exposed soil/rock: (NIR - SWIR2) / (NIR + SWIR2)
	IndexNDWI IndexKind = "ndwi" // moisture: (Green - NIR) / (Green + NIR)
)

// AllIndexKinds lists the indices the pipeline derives, in a stable order.
var AllIndexKinds = []IndexKind{IndexNDVI, IndexNBR, IndexNDWI}

// IndexSet holds the per-pixel index grids derived from one observation.
type IndexSet struct {
	Grids map[IndexKind]*Grid `json:"grids"`
}

// Grid returns the grid for the requested index, or nil when absent.
func (s *IndexSet) Grid(kind IndexKind) *Grid {
	return s.Grids[kind]
}

// ComputeIndices derives NDVI, NBR and NDWI grids from an observation's raw
// band reflectances. It is a pure function of its input: no pixel of the
// observation is modified. Pixels whose index denominator resolves to zero
// are masked out, not zeroed, so downstream statistics never see them.
func ComputeIndices(obs *Observation) (*IndexSet, error) {
	green := obs.Band(BandGreen)
	red := obs.Band(BandRed)
	nir := obs.Band(BandNIR)
	swir2 := obs.Band(BandSWIR2)

	if green == nil || red == nil || nir == nil || swir2 == nil {
		return nil, fmt.Errorf("observation is missing required bands (need green, red, nir, swir2)")
	}

	ndvi, err := normalizedDifference(nir, red)
	if err != nil {
		return nil, fmt.Errorf("ndvi: %w", err)
	}
	nbr, err := normalizedDifference(nir, swir2)
	if err != nil {
		return nil, fmt.Errorf("nbr: %w", err)
	}
	ndwi, err := normalizedDifference(green, nir)
	if err != nil {
		return nil, fmt.Errorf("ndwi: %w", err)
	}

	return &IndexSet{
		Grids: map[IndexKind]*Grid{
			IndexNDVI: ndvi,
			IndexNBR:  nbr,
			IndexNDWI: ndwi,
		},
	}, nil
}

// normalizedDifference computes (a - b) / (a + b) per pixel, clamped to
// [-1, 1]. A pixel is masked when either input pixel is invalid or the
// denominator is zero.
func normalizedDifference(a, b *Grid) (*Grid, error) {
	if !a.SameShape(b) {
		return nil, fmt.Errorf("band grids differ in shape: %dx%d vs %dx%d",
			a.Width, a.Height, b.Width, b.Height)
	}

	out, err := NewGrid(a.Width, a.Height)
	if err != nil {
		return nil, err
	}

	for i := 0; i < a.Len(); i++ {
		av, aok := a.At(i)
		bv, bok := b.At(i)
		if !aok || !bok {
			out.Mask(i)
			continue
		}

		denom := av + bv
		if denom == 0 {
			out.Mask(i)
			continue
		}

		v := (av - bv) / denom
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out.Set(i, v)
	}

	return out, nil
}
