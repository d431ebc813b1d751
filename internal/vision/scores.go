package vision

import "math"

// DefaultScore substitutes for missing or unparseable raw sub-scores.
const DefaultScore = 2.8

// ClampScore bounds a raw score to [1.0, 5.0] rounded to one decimal.
func ClampScore(v float64) float64 {
	return round1(math.Min(math.Max(v, 1.0), 5.0))
}

// SafeScore clamps v, substituting def when v is NaN or non-positive
// (providers occasionally omit scores or return zero).
func SafeScore(v float64, def float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		v = def
	}
	return ClampScore(v)
}

// Overall blends the four sub-scores into the weighted overall rating.
// Creativity contributes 10% and defaults to the mean of the other four when
// the provider does not supply it.
func Overall(composition, color, lighting, sharpness float64, creativity *float64) float64 {
	c1 := SafeScore(composition, DefaultScore)
	c2 := SafeScore(color, DefaultScore)
	c3 := SafeScore(lighting, DefaultScore)
	c4 := SafeScore(sharpness, DefaultScore)

	mean := (c1 + c2 + c3 + c4) / 4.0
	cr := mean
	if creativity != nil {
		cr = SafeScore(*creativity, mean)
	}

	overall := c1*0.25 + c2*0.20 + c3*0.25 + c4*0.20 + cr*0.10
	return ClampScore(overall)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
