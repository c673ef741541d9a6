package apispec

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestBuild_FormEncoding(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Default(), Endpoints{}, "https://panel.example/api/v2", "secret", "POST")

	req, err := b.AddOrder("42", "https://example.com/p/1", 500, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.Method)
	}
	if got := req.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("expected form content type, got %q", got)
	}
	if req.URL != "https://panel.example/api/v2" {
		t.Errorf("unexpected URL %q", req.URL)
	}

	params, err := url.ParseQuery(req.Body)
	if err != nil {
		t.Fatalf("body is not form encoded: %v", err)
	}
	for key, want := range map[string]string{
		"key":      "secret",
		"action":   "add",
		"service":  "42",
		"link":     "https://example.com/p/1",
		"quantity": "500",
	} {
		if got := params.Get(key); got != want {
			t.Errorf("param %s: expected %q, got %q", key, want, got)
		}
	}
	if params.Has("runs") || params.Has("interval") {
		t.Error("zero runs/interval must be omitted")
	}
}

func TestBuild_JSONEncoding(t *testing.T) {
	t.Parallel()

	spec := Default()
	spec.Encoding = EncodingJSON
	b := NewBuilder(spec, Endpoints{}, "https://panel.example/api/v2", "secret", "POST")

	req, err := b.Status("1007")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("expected json content type, got %q", got)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["action"] != "status" || body["order"] != "1007" || body["key"] != "secret" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestBuild_QueryEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		method   string
		encoding string
	}{
		{"get method", "GET", EncodingForm},
		{"query encoding", "POST", EncodingQuery},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spec := Default()
			spec.Encoding = tt.encoding
			b := NewBuilder(spec, Endpoints{}, "https://panel.example/api/v2", "secret", tt.method)

			req, err := b.Balance()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if req.Body != "" {
				t.Errorf("expected empty body, got %q", req.Body)
			}

			u, err := url.Parse(req.URL)
			if err != nil {
				t.Fatalf("bad URL: %v", err)
			}
			q := u.Query()
			if q.Get("key") != "secret" || q.Get("action") != "balance" {
				t.Errorf("expected key/action in query, got %q", u.RawQuery)
			}
		})
	}
}

func TestBuild_EndpointOverride(t *testing.T) {
	t.Parallel()

	endpoints := Endpoints{Balance: "https://billing.example/balance"}
	b := NewBuilder(Default(), endpoints, "https://panel.example/api/v2", "secret", "POST")

	balance, err := b.Balance()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.URL != "https://billing.example/balance" {
		t.Errorf("balance must use its override, got %q", balance.URL)
	}

	status, err := b.Status("5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.URL != "https://panel.example/api/v2" {
		t.Errorf("status must fall back to base URL, got %q", status.URL)
	}
}

func TestBuild_NoEndpointAtAll(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Default(), Endpoints{}, "", "secret", "POST")
	if _, err := b.Services(); err == nil {
		t.Fatal("expected error when neither endpoint nor base URL is set")
	}
}

func TestBuild_BatchParams(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Default(), Endpoints{}, "https://panel.example/api/v2", "secret", "POST")

	req, err := b.StatusBatch([]string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params, _ := url.ParseQuery(req.Body)
	if got := params.Get("orders"); got != "1,2,3" {
		t.Errorf("expected comma-joined ids, got %q", got)
	}

	cancel, err := b.Cancel([]string{"7", "8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params, _ = url.ParseQuery(cancel.Body)
	if params.Get("action") != "cancel" || params.Get("orders") != "7,8" {
		t.Errorf("unexpected cancel body %q", cancel.Body)
	}
}

func TestParse_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	raw := `{"key_param": "api_key", "status_action": "order_status", "encoding": "json"}`

	spec, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spec.KeyParam != "api_key" {
		t.Errorf("override lost: %q", spec.KeyParam)
	}
	if spec.StatusAction != "order_status" {
		t.Errorf("override lost: %q", spec.StatusAction)
	}
	if spec.Encoding != EncodingJSON {
		t.Errorf("override lost: %q", spec.Encoding)
	}
	if spec.ActionParam != "action" || spec.AddAction != "add" {
		t.Error("unset fields must keep defaults")
	}
}

func TestParse_EmptyAndInvalid(t *testing.T) {
	t.Parallel()

	spec, err := Parse("  ")
	if err != nil {
		t.Fatalf("empty spec must parse: %v", err)
	}
	if spec != Default() {
		t.Error("empty spec must equal defaults")
	}

	if _, err := Parse("{not json"); err == nil || !strings.Contains(err.Error(), "specification") {
		t.Errorf("expected parse error, got %v", err)
	}
}
