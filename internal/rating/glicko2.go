// Package rating implements the Glicko-2 update used for 1v1 games.
package rating

import (
	"math"

	"github.com/piloto-life/Gomoku/internal/models"
)

const (
	// GlickoScale converts between the display scale and Glicko-2's mu.
	GlickoScale = 173.7178
	// DefaultMu is the display rating that maps to mu = 0.
	DefaultMu = 1500.0
	// DefaultPhi is the rating deviation of an unrated player on the display scale.
	DefaultPhi = 350.0
	// DefaultSigma is the starting volatility.
	DefaultSigma = 0.06
	// Tau constrains volatility changes.
	Tau = 0.5
	// Epsilon is the convergence tolerance of the volatility iteration.
	Epsilon = 0.000001
)

// Scores for a single game from the first player's point of view.
const (
	Loss = 0.0
	Draw = 0.5
	Win  = 1.0
)

// Glicko2Rating holds mu, phi and sigma in Glicko-2 space.
type Glicko2Rating struct {
	Mu    float64
	Phi   float64
	Sigma float64
}

// NewGlicko2Rating converts a display rating, deviation and volatility.
func NewGlicko2Rating(rating, rd, sigma float64) Glicko2Rating {
	if rd <= 0 {
		rd = DefaultPhi
	}
	if sigma <= 0 {
		sigma = DefaultSigma
	}
	return Glicko2Rating{
		Mu:    (rating - DefaultMu) / GlickoScale,
		Phi:   rd / GlickoScale,
		Sigma: sigma,
	}
}

// FromUser reads the stored 1v1 state of u.
func FromUser(u models.User) Glicko2Rating {
	return NewGlicko2Rating(float64(u.Rating), u.RatingDeviation, u.Volatility)
}

// Rating is mu on the display scale.
func (r Glicko2Rating) Rating() float64 { return r.Mu*GlickoScale + DefaultMu }

// RD is phi on the display scale.
func (r Glicko2Rating) RD() float64 { return r.Phi * GlickoScale }

// Apply writes r back into u's rating fields.
func (r Glicko2Rating) Apply(u models.User) models.User {
	u.Rating = int(math.Round(r.Rating()))
	u.RatingDeviation = r.RD()
	u.Volatility = r.Sigma
	return u
}

// Update1v1 rates a single game between a and b. scoreA is a's result
// (Win, Draw or Loss); b receives the complement. Both updates use the
// pre-game ratings.
func Update1v1(a, b models.User, scoreA float64) (models.User, models.User) {
	ra, rb := FromUser(a), FromUser(b)
	na := Update(ra, rb, scoreA)
	nb := Update(rb, ra, 1-scoreA)
	return na.Apply(a), nb.Apply(b)
}

// Update performs one Glicko-2 rating period for r containing a single game
// against opp with the given score.
func Update(r, opp Glicko2Rating, score float64) Glicko2Rating {
	gVal := g(opp.Phi)
	eVal := E(r.Mu, opp.Mu, opp.Phi)

	v := 1.0 / (gVal * gVal * eVal * (1 - eVal))
	delta := v * gVal * (score - eVal)

	newSigma := volatility(r.Phi, r.Sigma, v, delta)
	phiStar := math.Sqrt(r.Phi*r.Phi + newSigma*newSigma)
	phiPrime := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	muPrime := r.Mu + phiPrime*phiPrime*gVal*(score-eVal)

	return Glicko2Rating{Mu: muPrime, Phi: phiPrime, Sigma: newSigma}
}

// volatility finds the new sigma with the Illinois variant of regula falsi.
func volatility(phi, sigma, v, delta float64) float64 {
	a := math.Log(sigma * sigma)
	fn := func(x float64) float64 { return f(x, phi, v, delta, a) }

	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for fn(a-k*Tau) < 0 {
			k++
		}
		B = a - k*Tau
	}

	fA, fB := fn(A), fn(B)
	for i := 0; i < 100 && math.Abs(B-A) > Epsilon; i++ {
		C := A + (A-B)*fA/(fB-fA)
		fC := fn(C)
		if fC*fB <= 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}
	return math.Exp(A / 2)
}

// g is 1/sqrt(1+3phi^2/pi^2).
func g(phi float64) float64 {
	return 1.0 / math.Sqrt(1.0+3.0*phi*phi/(math.Pi*math.Pi))
}

// E is the expected score of mu against an opponent (mu2, phi2).
func E(mu, mu2, phi2 float64) float64 {
	return 1.0 / (1.0 + math.Exp(-g(phi2)*(mu-mu2)))
}

func f(x, phi, v, delta, a float64) float64 {
	ex := math.Exp(x)
	num := ex * (delta*delta - phi*phi - v - ex)
	den := 2.0 * (phi*phi + v + ex) * (phi*phi + v + ex)
	return num/den - (x-a)/(Tau*Tau)
}
