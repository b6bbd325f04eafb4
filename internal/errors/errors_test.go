package errors

import (
	"errors"
	"fmt"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// ConnectivityError Tests
// -----------------------------------------------------------------------------

func TestNewConnectivityError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewConnectivityError("read failed", cause)

	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if !errors.Is(err, ErrDisconnected) {
		t.Error("errors.Is(err, ErrDisconnected) = false, want true")
	}
}

func TestConnectivityError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ConnectivityError
		want string
	}{
		{
			name: "bare",
			err:  NewConnectivityError("ping failed", nil),
			want: "connectivity error: ping failed",
		},
		{
			name: "with address and path",
			err: NewConnectivityError("read failed", fmt.Errorf("timeout")).
				WithAddress("localhost:6379").
				WithPath("/Tuning/Drag"),
			want: "connectivity error [address=localhost:6379, path=/Tuning/Drag]: read failed: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// ValidationError Tests
// -----------------------------------------------------------------------------

func TestValidationError(t *testing.T) {
	err := NewValidationError("shot rejected", ErrOutOfRange).
		WithField("distance").
		WithValue(-1.0).
		WithTimestamp(12.5)

	if !errors.Is(err, ErrOutOfRange) {
		t.Error("errors.Is(err, ErrOutOfRange) = false, want true")
	}
	if errors.Is(err, ErrNonFinite) {
		t.Error("errors.Is(err, ErrNonFinite) = true, want false")
	}

	want := "validation error [field=distance, value=-1, shot=12.500]: shot rejected: value out of physical range"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	var ve *ValidationError
	if !As(fmt.Errorf("tick: %w", err), &ve) {
		t.Fatal("As(*ValidationError) = false, want true")
	}
	if ve.Field != "distance" {
		t.Errorf("Field = %q, want %q", ve.Field, "distance")
	}
}

// -----------------------------------------------------------------------------
// OptimizerError Tests
// -----------------------------------------------------------------------------

func TestOptimizerError(t *testing.T) {
	err := NewOptimizerError("suggest failed", ErrBadSuggestion).
		WithCoefficient("DragCoefficient").
		WithObservations(4)

	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
	if !errors.Is(err, &OptimizerError{}) {
		t.Error("errors.Is(err, &OptimizerError{}) = false, want true")
	}

	want := "optimizer error [coefficient=DragCoefficient, observations=4]: suggest failed: optimizer returned invalid value"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// ConfigurationError Tests
// -----------------------------------------------------------------------------

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("bad bounds", ErrInvalidBounds).
		WithCoefficient("Drag").
		WithField("coefficients[0].min")

	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
	if !errors.Is(err, &ConfigurationError{}) {
		t.Error("errors.Is(err, &ConfigurationError{}) = false, want true")
	}
	if !errors.Is(err, ErrInvalidBounds) {
		t.Error("errors.Is(err, ErrInvalidBounds) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Helper Tests
// -----------------------------------------------------------------------------

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityDebug},
		{"plain", errors.New("boom"), SeverityError},
		{"validation", NewValidationError("x", nil), SeverityWarning},
		{"wrapped connectivity", fmt.Errorf("write: %w", NewConnectivityError("x", nil)), SeverityWarning},
		{"configuration", NewConfigurationError("x", nil), SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}
