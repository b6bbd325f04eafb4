package shot

import (
	"context"
	"maps"
	"math"

	"github.com/Iron-Ham/coeftune/internal/channel"
	"github.com/Iron-Ham/coeftune/internal/logging"
)

// Reader is the read side of the channel.
type Reader interface {
	Read(ctx context.Context, path string) (any, bool)
}

var payloadKeys = map[string]string{
	FieldHit:          channel.KeyHit,
	FieldDistance:     channel.KeyDistance,
	FieldPitch:        channel.KeyPitch,
	FieldExitVelocity: channel.KeyExitVelocity,
	FieldYaw:          channel.KeyYaw,
	FieldAccuracy:     channel.KeyAccuracy,
}

// Validator watches the remote shot timestamp and turns each new shot into
// a validated Record. Timestamps must strictly increase; a repeated
// timestamp is ignored.
type Validator struct {
	reader Reader
	limits Limits
	log    *logging.Logger

	lastSeen float64
	seen     bool
}

// NewValidator creates a validator reading through r.
func NewValidator(r Reader, limits Limits, log *logging.Logger) *Validator {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Validator{reader: r, limits: limits, log: log.WithComponent("shot")}
}

// Prime records the remote's current shot timestamp without consuming it,
// so a shot taken before startup is never attributed to this session.
func (v *Validator) Prime(ctx context.Context) {
	if ts, ok := v.timestamp(ctx); ok {
		v.lastSeen, v.seen = ts, true
	}
}

// LastSeen returns the last shot timestamp observed.
func (v *Validator) LastSeen() float64 {
	return v.lastSeen
}

// Poll checks for a new shot. It returns ok=true with the record when a new,
// valid shot is available. A new but invalid shot is consumed, logged once
// and returned as the error. snapshot supplies coefficient values the
// remote did not republish.
func (v *Validator) Poll(ctx context.Context, snapshot map[string]float64) (Record, bool, error) {
	ts, ok := v.timestamp(ctx)
	if !ok {
		return Record{}, false, nil
	}
	if v.seen {
		if ts == v.lastSeen {
			return Record{}, false, nil
		}
		if ts < v.lastSeen {
			// The remote restarted and its clock started over.
			v.log.Warn("shot timestamp went backwards", "last_seen", v.lastSeen, "timestamp", ts)
			v.lastSeen = ts
			return Record{}, false, nil
		}
	}
	v.lastSeen, v.seen = ts, true

	payload := make(Payload, len(payloadKeys))
	for field, key := range payloadKeys {
		if raw, found := v.reader.Read(ctx, key); found {
			payload[field] = raw
		}
	}

	coefs := maps.Clone(snapshot)
	if coefs == nil {
		coefs = map[string]float64{}
	}
	for name := range coefs {
		raw, found := v.reader.Read(ctx, channel.ShotCoefficientKey(name))
		if !found {
			continue
		}
		if f, isNum := channel.AsFloat(raw); isNum && !math.IsNaN(f) && !math.IsInf(f, 0) {
			coefs[name] = f
		}
	}

	rec, err := Check(ts, payload, coefs, v.limits)
	if err != nil {
		v.log.Warn("shot rejected", "timestamp", ts, "error", err)
		return Record{}, false, err
	}
	return rec, true, nil
}

func (v *Validator) timestamp(ctx context.Context) (float64, bool) {
	raw, found := v.reader.Read(ctx, channel.KeyShotTimestamp)
	if !found {
		return 0, false
	}
	ts, ok := channel.AsFloat(raw)
	if !ok || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return 0, false
	}
	return ts, true
}
