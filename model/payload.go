package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidPayload is returned by Payload.Validate.
var ErrInvalidPayload = errors.New("invalid payload")

// SLATier is the priority class of a payload. The zero value is not a tier,
// so a payload decoded without one fails validation.
type SLATier int

const (
	// Gold carries latency-critical, high-reliability traffic.
	Gold SLATier = iota + 1
	// Silver is balanced enterprise traffic.
	Silver
	// Bulk is best-effort batch traffic.
	Bulk
)

func (t SLATier) String() string {
	switch t {
	case Gold:
		return "gold"
	case Silver:
		return "silver"
	case Bulk:
		return "bulk"
	default:
		return fmt.Sprintf("sla_tier(%d)", int(t))
	}
}

func (t SLATier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *SLATier) UnmarshalText(b []byte) error {
	parsed, err := ParseSLATier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseSLATier maps "gold", "silver" or "bulk" (any case) to a tier.
func ParseSLATier(s string) (SLATier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gold":
		return Gold, nil
	case "silver":
		return Silver, nil
	case "bulk":
		return Bulk, nil
	default:
		return 0, fmt.Errorf("unknown SLA tier %q", s)
	}
}

// Payload is an immutable routing request descriptor with its SLA envelope.
type Payload struct {
	ID         string  `json:"id"`
	SLATier    SLATier `json:"sla_tier"`
	LMaxMs     float64 `json:"l_max_ms"`    // end-to-end latency bound
	JMaxMs2    float64 `json:"j_max_ms2"`   // latency variance bound
	PLossMax   float64 `json:"p_loss_max"`  // failure probability bound
	TauSeconds float64 `json:"tau_seconds"` // urgency time constant
	// DeadlineMs is an optional unix-epoch deadline in milliseconds.
	DeadlineMs *uint64 `json:"deadline_ms,omitempty"`
}

// Valid reports whether t is one of the defined tiers.
func (t SLATier) Valid() bool {
	return t >= Gold && t <= Bulk
}

// Validate checks the tier is set, the bounds are finite and non-negative and
// the urgency time constant is positive.
func (p Payload) Validate() error {
	if !p.SLATier.Valid() {
		return fmt.Errorf("%w: missing or unknown sla_tier", ErrInvalidPayload)
	}
	bounds := []struct {
		name  string
		value float64
	}{
		{"l_max_ms", p.LMaxMs},
		{"j_max_ms2", p.JMaxMs2},
		{"p_loss_max", p.PLossMax},
	}
	for _, b := range bounds {
		if b.value < 0 || math.IsNaN(b.value) || math.IsInf(b.value, 0) {
			return fmt.Errorf("%w: %s must be a non-negative number, got %v", ErrInvalidPayload, b.name, b.value)
		}
	}
	if !(p.TauSeconds > 0) || math.IsInf(p.TauSeconds, 0) {
		return fmt.Errorf("%w: tau_seconds must be positive, got %v", ErrInvalidPayload, p.TauSeconds)
	}
	return nil
}

// DefaultPayload is a silver payload with a 50 ms latency SLA.
func DefaultPayload() Payload {
	return Payload{
		ID:         "default",
		SLATier:    Silver,
		LMaxMs:     50,
		JMaxMs2:    25,
		PLossMax:   0.001,
		TauSeconds: 60,
	}
}

func GoldPayload(id string, lMaxMs float64) Payload {
	return Payload{
		ID:         id,
		SLATier:    Gold,
		LMaxMs:     lMaxMs,
		JMaxMs2:    4,
		PLossMax:   0.0001,
		TauSeconds: 10,
	}
}

func SilverPayload(id string, lMaxMs float64) Payload {
	return Payload{
		ID:         id,
		SLATier:    Silver,
		LMaxMs:     lMaxMs,
		JMaxMs2:    25,
		PLossMax:   0.001,
		TauSeconds: 60,
	}
}

func BulkPayload(id string) Payload {
	return Payload{
		ID:         id,
		SLATier:    Bulk,
		LMaxMs:     200,
		JMaxMs2:    400,
		PLossMax:   0.01,
		TauSeconds: 3600,
	}
}

// PayloadForTier returns the preset payload for tier with the given latency
// bound. Bulk ignores lMaxMs.
func PayloadForTier(id string, tier SLATier, lMaxMs float64) Payload {
	switch tier {
	case Gold:
		return GoldPayload(id, lMaxMs)
	case Bulk:
		return BulkPayload(id)
	default:
		return SilverPayload(id, lMaxMs)
	}
}

// WithDeadline returns a copy of p carrying the given deadline.
func (p Payload) WithDeadline(deadlineMs uint64) Payload {
	d := deadlineMs
	p.DeadlineMs = &d
	return p
}
