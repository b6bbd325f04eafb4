// Package shot turns raw remote shot payloads into validated, immutable
// records.
package shot

import "maps"

// Solution is the firing solution the remote used for a shot.
type Solution struct {
	PitchRadians float64 `json:"pitch_rad"`
	ExitVelocity float64 `json:"exit_velocity_mps"`
	YawRadians   float64 `json:"yaw_rad"`
}

// Record is one accepted shot. Records are values; Coefficients is never
// mutated after the record is built.
type Record struct {
	// Timestamp is the remote's shot time in seconds and the record's identity.
	Timestamp float64  `json:"timestamp"`
	Hit       bool     `json:"hit"`
	Distance  float64  `json:"distance_m"`
	Solution  Solution `json:"solution"`
	// Accuracy is an optional score in [0, 1] for continuous reward.
	Accuracy *float64 `json:"accuracy,omitempty"`
	// Coefficient is the coefficient being tuned when the shot was accepted.
	Coefficient string `json:"coefficient,omitempty"`
	// Coefficients holds every coefficient value in effect for the shot.
	Coefficients map[string]float64 `json:"coefficients"`
}

// ValueOf returns the value the named coefficient had for this shot.
func (r Record) ValueOf(name string) (float64, bool) {
	v, ok := r.Coefficients[name]
	return v, ok
}

// Reward returns 1 for a hit and 0 for a miss, or the accuracy score when
// useAccuracy is set and the shot carries one.
func (r Record) Reward(useAccuracy bool) float64 {
	if useAccuracy && r.Accuracy != nil {
		return *r.Accuracy
	}
	if r.Hit {
		return 1
	}
	return 0
}

// WithCoefficient returns a copy of r tagged with the current coefficient.
func (r Record) WithCoefficient(name string) Record {
	r.Coefficients = maps.Clone(r.Coefficients)
	r.Coefficient = name
	return r
}
