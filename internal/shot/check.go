package shot

import (
	"fmt"
	"math"

	"github.com/Iron-Ham/coeftune/internal/channel"
	"github.com/Iron-Ham/coeftune/internal/config"
	tunerrors "github.com/Iron-Ham/coeftune/internal/errors"
)

// Limits are the physical ranges a shot must fall inside.
type Limits struct {
	MinDistance float64
	MaxDistance float64
	MinVelocity float64
	MaxVelocity float64
	MinAngle    float64
	MaxAngle    float64
}

// LimitsFromConfig maps the limits config section onto Limits.
func LimitsFromConfig(cfg config.LimitsConfig) Limits {
	return Limits{
		MinDistance: cfg.MinDistance,
		MaxDistance: cfg.MaxDistance,
		MinVelocity: cfg.MinVelocity,
		MaxVelocity: cfg.MaxVelocity,
		MinAngle:    cfg.MinAngle,
		MaxAngle:    cfg.MaxAngle,
	}
}

// Field names used in Payload and in validation errors.
const (
	FieldHit          = "hit"
	FieldDistance     = "distance"
	FieldPitch        = "pitch"
	FieldExitVelocity = "exit_velocity"
	FieldYaw          = "yaw"
	FieldAccuracy     = "accuracy"
)

// Payload is a raw shot as read from the channel, keyed by field name.
// Absent fields are missing from the map.
type Payload map[string]any

// Check validates a raw payload and builds the record for timestamp ts.
// coefficients is stored on the record as-is. The first failing field is
// reported as a ValidationError.
func Check(ts float64, p Payload, coefficients map[string]float64, limits Limits) (Record, error) {
	rec := Record{Timestamp: ts, Coefficients: coefficients}

	hitRaw, ok := p[FieldHit]
	if !ok {
		return Record{}, invalid(ts, FieldHit, nil, tunerrors.ErrMissingField)
	}
	hit, ok := hitRaw.(bool)
	if !ok {
		return Record{}, invalid(ts, FieldHit, hitRaw, tunerrors.ErrWrongType)
	}
	rec.Hit = hit

	var err error
	if rec.Distance, err = number(ts, p, FieldDistance); err != nil {
		return Record{}, err
	}
	if rec.Distance <= 0 || rec.Distance < limits.MinDistance || rec.Distance > limits.MaxDistance {
		return Record{}, outOfRange(ts, FieldDistance, rec.Distance, limits.MinDistance, limits.MaxDistance)
	}

	if rec.Solution.PitchRadians, err = number(ts, p, FieldPitch); err != nil {
		return Record{}, err
	}
	if rec.Solution.PitchRadians < limits.MinAngle || rec.Solution.PitchRadians > limits.MaxAngle {
		return Record{}, outOfRange(ts, FieldPitch, rec.Solution.PitchRadians, limits.MinAngle, limits.MaxAngle)
	}

	if rec.Solution.ExitVelocity, err = number(ts, p, FieldExitVelocity); err != nil {
		return Record{}, err
	}
	if rec.Solution.ExitVelocity < limits.MinVelocity || rec.Solution.ExitVelocity > limits.MaxVelocity {
		return Record{}, outOfRange(ts, FieldExitVelocity, rec.Solution.ExitVelocity, limits.MinVelocity, limits.MaxVelocity)
	}

	if rec.Solution.YawRadians, err = number(ts, p, FieldYaw); err != nil {
		return Record{}, err
	}
	if math.Abs(rec.Solution.YawRadians) > math.Pi {
		return Record{}, outOfRange(ts, FieldYaw, rec.Solution.YawRadians, -math.Pi, math.Pi)
	}

	if _, present := p[FieldAccuracy]; present {
		acc, err := number(ts, p, FieldAccuracy)
		if err != nil {
			return Record{}, err
		}
		if acc < 0 || acc > 1 {
			return Record{}, outOfRange(ts, FieldAccuracy, acc, 0, 1)
		}
		rec.Accuracy = &acc
	}

	return rec, nil
}

func number(ts float64, p Payload, field string) (float64, error) {
	raw, ok := p[field]
	if !ok {
		return 0, invalid(ts, field, nil, tunerrors.ErrMissingField)
	}
	v, ok := channel.AsFloat(raw)
	if !ok {
		return 0, invalid(ts, field, raw, tunerrors.ErrWrongType)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(ts, field, v, tunerrors.ErrNonFinite)
	}
	return v, nil
}

func invalid(ts float64, field string, value any, cause error) error {
	return tunerrors.NewValidationError("shot rejected", cause).
		WithField(field).
		WithValue(value).
		WithTimestamp(ts)
}

func outOfRange(ts float64, field string, value, lo, hi float64) error {
	return tunerrors.NewValidationError(
		fmt.Sprintf("shot rejected: outside [%g, %g]", lo, hi),
		tunerrors.ErrOutOfRange,
	).WithField(field).WithValue(value).WithTimestamp(ts)
}
