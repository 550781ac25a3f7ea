package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestPayloadPresetsValidate(t *testing.T) {
	for _, p := range []Payload{DefaultPayload(), GoldPayload("g", 10), SilverPayload("s", 50), BulkPayload("b")} {
		if err := p.Validate(); err != nil {
			t.Fatalf("%s: Validate() = %v, want nil", p.ID, err)
		}
	}
}

func TestPayloadWithoutTierIsInvalid(t *testing.T) {
	var p Payload
	if err := json.Unmarshal([]byte(`{"id":"x","l_max_ms":50,"j_max_ms2":25,"p_loss_max":0.001,"tau_seconds":60}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.SLATier == Gold {
		t.Fatalf("missing tier decoded as gold")
	}
	if err := p.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("Validate() = %v, want ErrInvalidPayload", err)
	}
}

func TestPayloadValidateRejectsBadBounds(t *testing.T) {
	base := SilverPayload("s", 50)

	tau := base
	tau.TauSeconds = -1
	lat := base
	lat.LMaxMs = -1
	nan := base
	nan.PLossMax = math.NaN()
	zeroTau := base
	zeroTau.TauSeconds = 0

	for name, p := range map[string]Payload{"negative tau": tau, "zero tau": zeroTau, "negative latency": lat, "nan loss": nan} {
		if err := p.Validate(); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("%s: Validate() = %v, want ErrInvalidPayload", name, err)
		}
	}
}

func TestSLATierText(t *testing.T) {
	var tier SLATier
	if err := tier.UnmarshalText([]byte("Bulk")); err != nil || tier != Bulk {
		t.Fatalf("UnmarshalText = %v, %v", tier, err)
	}
	if err := tier.UnmarshalText([]byte("platinum")); err == nil {
		t.Fatalf("expected error for unknown tier")
	}
	if SLATier(0).Valid() {
		t.Fatalf("zero tier reported valid")
	}
}
