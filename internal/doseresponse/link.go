package doseresponse

import (
	"fmt"
	"math"
	"strings"
)

// Link is the GLM link function relating the response fraction to log dose.
type Link int

const (
	// CLogLog is the complementary log-log link, log(-log(1-p)). With slope 1
	// it is the single-hit Poisson model p = 1 - exp(-dose/titer).
	CLogLog Link = iota
	// Logit is the log-odds link.
	Logit
)

const epsilon = 2.220446049250313e-16

func (l Link) String() string {
	switch l {
	case CLogLog:
		return "cloglog"
	case Logit:
		return "logit"
	default:
		return fmt.Sprintf("Link(%d)", int(l))
	}
}

// ParseLink parses a link name.
func ParseLink(s string) (Link, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cloglog", "":
		return CLogLog, nil
	case "logit":
		return Logit, nil
	}
	return 0, fmt.Errorf("%w: unknown link %q", ErrInvalidParameter, s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Link) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Link) UnmarshalText(text []byte) error {
	v, err := ParseLink(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func (l Link) valid() bool {
	return l == CLogLog || l == Logit
}

// eta maps a probability to the linear predictor scale.
func (l Link) eta(mu float64) float64 {
	if l == Logit {
		return math.Log(mu / (1 - mu))
	}
	return math.Log(-math.Log1p(-mu))
}

// mu maps the linear predictor back to a probability, kept inside (0, 1).
func (l Link) mu(eta float64) float64 {
	var p float64
	if l == Logit {
		eta = math.Max(math.Min(eta, 30), -30)
		p = 1 / (1 + math.Exp(-eta))
	} else {
		p = -math.Expm1(-math.Exp(eta))
	}
	return math.Max(math.Min(p, 1-epsilon), epsilon)
}

// dmu returns d mu / d eta.
func (l Link) dmu(eta float64) float64 {
	var d float64
	if l == Logit {
		e := math.Exp(-math.Abs(eta))
		d = e / ((1 + e) * (1 + e))
	} else {
		eta = math.Min(eta, 700)
		d = math.Exp(eta - math.Exp(eta))
	}
	return math.Max(d, epsilon)
}
