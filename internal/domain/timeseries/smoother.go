package timeseries

import "fmt"

// DefaultSmoothingWindow is the default Savitzky-Golay window size.
const DefaultSmoothingWindow = 7

// Smoother de-noises an area time series with a Savitzky-Golay filter
// (quadratic local fit over a symmetric moving window). It removes
// high-frequency noise while preserving the peaks and ramps that matter
// for trend and rate estimation.
type Smoother struct {
	window int
	coeffs []float64
}

// NewSmoother constructs a smoother with the given window size. The window
// must be odd and at least 3; even sizes are widened by one.
func NewSmoother(window int) (*Smoother, error) {
	if window <= 0 {
		window = DefaultSmoothingWindow
	}
	if window%2 == 0 {
		window++
	}
	if window < 3 {
		return nil, fmt.Errorf("smoothing window must be at least 3, got %d", window)
	}

	return &Smoother{
		window: window,
		coeffs: savgolCoefficients(window),
	}, nil
}

// Window returns the configured window size.
func (s *Smoother) Window() int {
	return s.window
}

// Smooth returns the smoothed series. The output always has the same length
// as the input; when the series is shorter than the window the raw values
// are returned unchanged. Edges are handled by mirroring the series.
func (s *Smoother) Smooth(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)

	if len(values) < s.window {
		return out
	}

	half := s.window / 2
	for i := range values {
		var sum float64
		for j := -half; j <= half; j++ {
			sum += s.coeffs[j+half] * mirrored(values, i+j)
		}
		out[i] = sum
	}
	return out
}

// SmoothLatest returns the smoothed value for the newest element of the
// series, which is what each pipeline run records on its point.
func (s *Smoother) SmoothLatest(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	smoothed := s.Smooth(values)
	return smoothed[len(smoothed)-1]
}

// mirrored indexes the series with reflection at both ends.
func mirrored(values []float64, i int) float64 {
	n := len(values)
	if i < 0 {
		i = -i
	}
	if i >= n {
		i = 2*(n-1) - i
	}
	if i < 0 {
		i = 0
	}
	return values[i]
}

// savgolCoefficients returns the closed-form quadratic Savitzky-Golay
// smoothing weights for an odd window 2m+1:
//
//	w_i = (3(3m^2+3m-1) - 15 i^2) / ((2m+3)(2m+1)(2m-1)),  i in [-m, m]
func savgolCoefficients(window int) []float64 {
	m := window / 2
	mf := float64(m)
	denom := (2*mf + 3) * (2*mf + 1) * (2*mf - 1)
	base := 3 * (3*mf*mf + 3*mf - 1)

	coeffs := make([]float64, window)
	for i := -m; i <= m; i++ {
		coeffs[i+m] = (base - 15*float64(i*i)) / denom
	}
	return coeffs
}
