package provider

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/smmpanel/panelsync/internal/customerror"
	"github.com/smmpanel/panelsync/internal/model"
)

func providerWithMapping(raw *string) model.Provider {
	return model.Provider{ResponseMapping: raw}
}

func TestParseStatus_DefaultNames(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"charge": "0.27", "start_count": "3572", "status": "Partial", "remains": 157, "currency": "USD"}`)

	info, err := ParseStatus(raw, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !info.Charge.Equal(decimal.RequireFromString("0.27")) {
		t.Errorf("charge: got %s", info.Charge)
	}
	if info.StartCount != 3572 {
		t.Errorf("start_count: got %d", info.StartCount)
	}
	if info.Status != "Partial" {
		t.Errorf("status: got %q", info.Status)
	}
	if info.Remains != 157 {
		t.Errorf("remains: got %d", info.Remains)
	}
	if info.Currency != "USD" {
		t.Errorf("currency: got %q", info.Currency)
	}
}

func TestParseStatus_AbsentFieldsDefaultToZero(t *testing.T) {
	t.Parallel()

	info, err := ParseStatus([]byte(`{"status": "In progress"}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Charge.IsZero() || info.StartCount != 0 || info.Remains != 0 {
		t.Errorf("absent fields must default to zero, got %+v", info)
	}
}

func TestParseStatus_CustomMapping(t *testing.T) {
	t.Parallel()

	m := Mapping{
		"status": "data.state",
		"charge": "data.cost",
	}
	raw := []byte(`{"data": {"state": "completed", "cost": 1.5}, "remains": "9"}`)

	info, err := ParseStatus(raw, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Status != "completed" {
		t.Errorf("mapped status: got %q", info.Status)
	}
	if !info.Charge.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("mapped charge: got %s", info.Charge)
	}
	if info.Remains != 9 {
		t.Errorf("unmapped field must use default name: got %d", info.Remains)
	}
}

func TestParseStatus_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"status": `},
		{"array instead of object", `[{"status": "pending"}]`},
		{"plain string", `"ok"`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseStatus([]byte(tt.raw), nil)
			var malformed *customerror.MalformedResponse
			if !errors.As(err, &malformed) {
				t.Errorf("expected MalformedResponse, got %v", err)
			}
		})
	}
}

func TestParseStatus_ProviderError(t *testing.T) {
	t.Parallel()

	_, err := ParseStatus([]byte(`{"error": "Incorrect order ID"}`), nil)

	var rejected *customerror.ProviderRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected ProviderRejected, got %v", err)
	}
	if rejected.Message != "Incorrect order ID" {
		t.Errorf("message must be kept verbatim, got %q", rejected.Message)
	}
}

func TestParseAddOrder(t *testing.T) {
	t.Parallel()

	id, charge, err := ParseAddOrder([]byte(`{"order": 10734, "charge": "2.4"}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "10734" {
		t.Errorf("numeric order id must coerce to string, got %q", id)
	}
	if !charge.Equal(decimal.RequireFromString("2.4")) {
		t.Errorf("charge: got %s", charge)
	}

	id, charge, err = ParseAddOrder([]byte(`{"order": "abc-1"}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc-1" || !charge.IsZero() {
		t.Errorf("got id=%q charge=%s", id, charge)
	}

	_, _, err = ParseAddOrder([]byte(`{"status": "ok"}`), nil)
	var malformed *customerror.MalformedResponse
	if !errors.As(err, &malformed) {
		t.Errorf("missing order id must be malformed, got %v", err)
	}
}

func TestParseBalance(t *testing.T) {
	t.Parallel()

	bal, err := ParseBalance([]byte(`{"balance": "100.84292", "currency": "USD"}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bal.Balance.Equal(decimal.RequireFromString("100.84292")) || bal.Currency != "USD" {
		t.Errorf("got %+v", bal)
	}
}

func TestParseServices(t *testing.T) {
	t.Parallel()

	raw := []byte(`[
		{"service": 1, "name": "Followers", "type": "Default", "category": "IG", "rate": "0.90", "min": "50", "max": 10000, "refill": true, "cancel": "1"},
		{"service": "2", "name": "Likes", "type": "Default", "category": "IG", "rate": 1.2, "min": 10, "max": 5000, "refill": 1, "cancel": "false"}
	]`)

	services, err := ParseServices(raw, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}

	first := services[0]
	if first.ServiceID != "1" || first.Min != 50 || first.Max != 10000 {
		t.Errorf("stringly-typed numbers must coerce: %+v", first)
	}
	if !first.Refill || !first.Cancel {
		t.Errorf("boolean coercion must accept true and \"1\": %+v", first)
	}
	if !services[1].Refill || services[1].Cancel {
		t.Errorf("boolean coercion must accept 1 and reject \"false\": %+v", services[1])
	}

	_, err = ParseServices([]byte(`{"error": "bad key"}`), nil)
	var rejected *customerror.ProviderRejected
	if !errors.As(err, &rejected) {
		t.Errorf("expected ProviderRejected, got %v", err)
	}

	_, err = ParseServices([]byte(`{"services": []}`), nil)
	var malformed *customerror.MalformedResponse
	if !errors.As(err, &malformed) {
		t.Errorf("non-array services response must be malformed, got %v", err)
	}
}

func TestMappingFor_Invalid(t *testing.T) {
	t.Parallel()

	bad := `{"status": ` // truncated
	p := providerWithMapping(&bad)
	if _, err := MappingFor(p); err == nil {
		t.Fatal("expected error for invalid mapping JSON")
	}

	if m, err := MappingFor(providerWithMapping(nil)); err != nil || m != nil {
		t.Errorf("nil mapping must be zero-config, got %v %v", m, err)
	}
}
