// Package segment builds labeled nuclear masks from nuclear-stain intensity images.
package segment

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameter is returned for malformed segmentation parameters or images.
var ErrInvalidParameter = errors.New("invalid parameter")

// Params holds the Nuclear Mask Builder parameters.
type Params struct {
	// Width is the expected maximal nuclear width in pixels. It sets the diameter
	// of the adaptive threshold window.
	Width int `json:"width"`

	// Offset is added to the local mean; a pixel is foreground only if it exceeds
	// the mean by more than Offset (in normalised [0,1] units).
	Offset float64 `json:"offset"`

	// Gamma is applied before normalisation. Values below 1 boost dim signal.
	Gamma float64 `json:"gamma"`

	// Sigma is the median radius and Gaussian standard deviation used for
	// smoothing. Zero disables smoothing.
	Sigma float64 `json:"sigma"`

	// Watershed seeds whose peaks differ from the meeting point by less than
	// Tolerance are merged. Ext is the neighbourhood radius in pixels.
	Tolerance float64 `json:"tolerance"`
	Ext       int     `json:"ext"`
}

// DefaultParams returns parameters tuned for 10-20x nuclear-stain micrographs.
func DefaultParams() Params {
	return Params{
		Width:     50,
		Offset:    0.05,
		Gamma:     1,
		Sigma:     2,
		Tolerance: 1,
		Ext:       1,
	}
}

// WithWidth returns a copy of params with a different expected nuclear width.
func (p Params) WithWidth(width int) Params {
	p.Width = width
	return p
}

// WithOffset returns a copy of params with a different threshold offset.
func (p Params) WithOffset(offset float64) Params {
	p.Offset = offset
	return p
}

// WithGamma returns a copy of params with a different gamma exponent.
func (p Params) WithGamma(gamma float64) Params {
	p.Gamma = gamma
	return p
}

// WithSigma returns a copy of params with a different smoothing radius.
func (p Params) WithSigma(sigma float64) Params {
	p.Sigma = sigma
	return p
}

// WithWatershed returns a copy of params with different watershed settings.
func (p Params) WithWatershed(tolerance float64, ext int) Params {
	p.Tolerance = tolerance
	p.Ext = ext
	return p
}

// Validate checks every parameter and reports the first violation.
func (p Params) Validate() error {
	switch {
	case p.Width <= 1:
		return fmt.Errorf("%w: width must be > 1, got %d", ErrInvalidParameter, p.Width)
	case math.IsNaN(p.Offset) || math.IsInf(p.Offset, 0):
		return fmt.Errorf("%w: offset must be finite", ErrInvalidParameter)
	case !(p.Gamma > 0) || math.IsInf(p.Gamma, 0):
		return fmt.Errorf("%w: gamma must be > 0, got %g", ErrInvalidParameter, p.Gamma)
	case !(p.Sigma >= 0) || math.IsInf(p.Sigma, 0):
		return fmt.Errorf("%w: sigma must be >= 0, got %g", ErrInvalidParameter, p.Sigma)
	case !(p.Tolerance >= 0):
		return fmt.Errorf("%w: tolerance must be >= 0, got %g", ErrInvalidParameter, p.Tolerance)
	case p.Ext < 1:
		return fmt.Errorf("%w: ext must be >= 1, got %d", ErrInvalidParameter, p.Ext)
	}
	return nil
}
