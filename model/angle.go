package model

import "math"

// WrapAngle wraps angle a into the interval (-pi, pi].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}

	// a tiny positive remainder rounds to -pi
	if a -= math.Pi; a <= -math.Pi {
		return math.Pi
	}

	return a
}
