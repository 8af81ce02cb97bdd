package glm

import (
	"fmt"
	"math"
)

// Family is the error distribution of a generalized linear model.
type Family int

const (
	Binomial Family = iota
	Gaussian
)

func (f Family) String() string {
	switch f {
	case Binomial:
		return "Binomial"
	case Gaussian:
		return "Gaussian"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Link maps the mean onto the linear predictor.
type Link int

const (
	// CanonicalLink selects the family's canonical link.
	CanonicalLink Link = iota
	LogitLink
	IdentityLink
)

func (l Link) String() string {
	switch l {
	case CanonicalLink:
		return "canonical"
	case LogitLink:
		return "logit"
	case IdentityLink:
		return "identity"
	default:
		return fmt.Sprintf("Link(%d)", int(l))
	}
}

// Canonical returns the canonical link of f.
func (f Family) Canonical() Link {
	if f == Binomial {
		return LogitLink
	}
	return IdentityLink
}

// clip bounds binomial means away from 0 and 1.
const clip = 1e-10

func (l Link) link(mu float64) float64 {
	if l == LogitLink {
		return math.Log(mu / (1 - mu))
	}
	return mu
}

func (l Link) inverse(eta float64) float64 {
	if l == LogitLink {
		return 1 / (1 + math.Exp(-eta))
	}
	return eta
}

// deriv is d mu / d eta.
func (l Link) deriv(eta float64) float64 {
	if l == LogitLink {
		p := l.inverse(eta)
		return math.Max(p*(1-p), clip)
	}
	return 1
}

func (f Family) variance(mu float64) float64 {
	if f == Binomial {
		return math.Max(mu*(1-mu), clip)
	}
	return 1
}

func (f Family) bound(mu float64) float64 {
	if f == Binomial {
		return math.Min(math.Max(mu, clip), 1-clip)
	}
	return mu
}

func (f Family) startMu(y, mean float64) float64 {
	if f == Binomial {
		return (y + 0.5) / 2
	}
	return (y + mean) / 2
}

// unitDeviance is the deviance contribution of one observation.
func (f Family) unitDeviance(y, mu float64) float64 {
	if f == Gaussian {
		return (y - mu) * (y - mu)
	}
	return 2 * (xlogy(y, y/mu) + xlogy(1-y, (1-y)/(1-mu)))
}

func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}
