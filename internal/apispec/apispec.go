// Package apispec describes upstream SMM provider APIs declaratively and
// builds concrete HTTP requests from those descriptions. Providers differ in
// parameter names, action verbs, endpoints and request encoding; all of that
// is data here, never code.
package apispec

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Request encodings.
const (
	EncodingForm  = "form"
	EncodingJSON  = "json"
	EncodingQuery = "query"
)

// Specification holds one provider's parameter names and action verbs.
// Zero-valued fields fall back to the standard panel names, so a conforming
// provider needs no configuration at all.
type Specification struct {
	KeyParam      string `json:"key_param"`
	ActionParam   string `json:"action_param"`
	ServiceParam  string `json:"service_param"`
	LinkParam     string `json:"link_param"`
	QuantityParam string `json:"quantity_param"`
	RunsParam     string `json:"runs_param"`
	IntervalParam string `json:"interval_param"`
	OrderParam    string `json:"order_param"`
	OrdersParam   string `json:"orders_param"`

	ServicesAction string `json:"services_action"`
	AddAction      string `json:"add_action"`
	StatusAction   string `json:"status_action"`
	BalanceAction  string `json:"balance_action"`
	RefillAction   string `json:"refill_action"`
	CancelAction   string `json:"cancel_action"`

	Encoding string `json:"encoding"`
}

// Default returns the standard panel specification.
func Default() Specification {
	return Specification{
		KeyParam:      "key",
		ActionParam:   "action",
		ServiceParam:  "service",
		LinkParam:     "link",
		QuantityParam: "quantity",
		RunsParam:     "runs",
		IntervalParam: "interval",
		OrderParam:    "order",
		OrdersParam:   "orders",

		ServicesAction: "services",
		AddAction:      "add",
		StatusAction:   "status",
		BalanceAction:  "balance",
		RefillAction:   "refill",
		CancelAction:   "cancel",

		Encoding: EncodingForm,
	}
}

// Parse overlays a JSON specification row onto the defaults. An empty raw
// string yields the default specification.
func Parse(raw string) (Specification, error) {
	spec := Default()
	if strings.TrimSpace(raw) == "" {
		return spec, nil
	}
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return spec, fmt.Errorf("can't parse api specification: %w", err)
	}
	defaults := Default()
	fillEmpty(&spec.KeyParam, defaults.KeyParam)
	fillEmpty(&spec.ActionParam, defaults.ActionParam)
	fillEmpty(&spec.ServiceParam, defaults.ServiceParam)
	fillEmpty(&spec.LinkParam, defaults.LinkParam)
	fillEmpty(&spec.QuantityParam, defaults.QuantityParam)
	fillEmpty(&spec.RunsParam, defaults.RunsParam)
	fillEmpty(&spec.IntervalParam, defaults.IntervalParam)
	fillEmpty(&spec.OrderParam, defaults.OrderParam)
	fillEmpty(&spec.OrdersParam, defaults.OrdersParam)
	fillEmpty(&spec.ServicesAction, defaults.ServicesAction)
	fillEmpty(&spec.AddAction, defaults.AddAction)
	fillEmpty(&spec.StatusAction, defaults.StatusAction)
	fillEmpty(&spec.BalanceAction, defaults.BalanceAction)
	fillEmpty(&spec.RefillAction, defaults.RefillAction)
	fillEmpty(&spec.CancelAction, defaults.CancelAction)
	fillEmpty(&spec.Encoding, defaults.Encoding)
	return spec, nil
}

func fillEmpty(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

// Endpoints are per-operation URL overrides; an empty field falls back to the
// provider's base URL. Some providers serve balance/status from a different
// root than their main API.
type Endpoints struct {
	Services string
	Add      string
	Status   string
	Balance  string
	Refill   string
	Cancel   string
}

// Request is a fully-formed provider call, ready to be sent.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   string
}

// Builder produces Requests for one provider.
type Builder struct {
	spec      Specification
	endpoints Endpoints
	baseURL   string
	apiKey    string
	method    string
}

func NewBuilder(spec Specification, endpoints Endpoints, baseURL, apiKey, method string) *Builder {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = http.MethodPost
	}
	return &Builder{
		spec:      spec,
		endpoints: endpoints,
		baseURL:   baseURL,
		apiKey:    apiKey,
		method:    m,
	}
}

func (b *Builder) Services() (Request, error) {
	return b.build(b.endpoints.Services, b.spec.ServicesAction, url.Values{})
}

// AddOrder builds a place-order request. runs and interval are optional drip
// parameters; zero values are omitted.
func (b *Builder) AddOrder(serviceID, link string, quantity, runs, interval int) (Request, error) {
	params := url.Values{}
	params.Set(b.spec.ServiceParam, serviceID)
	params.Set(b.spec.LinkParam, link)
	params.Set(b.spec.QuantityParam, strconv.Itoa(quantity))
	if runs > 0 {
		params.Set(b.spec.RunsParam, strconv.Itoa(runs))
	}
	if interval > 0 {
		params.Set(b.spec.IntervalParam, strconv.Itoa(interval))
	}
	return b.build(b.endpoints.Add, b.spec.AddAction, params)
}

func (b *Builder) Status(orderID string) (Request, error) {
	params := url.Values{}
	params.Set(b.spec.OrderParam, orderID)
	return b.build(b.endpoints.Status, b.spec.StatusAction, params)
}

func (b *Builder) StatusBatch(orderIDs []string) (Request, error) {
	params := url.Values{}
	params.Set(b.spec.OrdersParam, strings.Join(orderIDs, ","))
	return b.build(b.endpoints.Status, b.spec.StatusAction, params)
}

func (b *Builder) Balance() (Request, error) {
	return b.build(b.endpoints.Balance, b.spec.BalanceAction, url.Values{})
}

func (b *Builder) Refill(orderID string) (Request, error) {
	params := url.Values{}
	params.Set(b.spec.OrderParam, orderID)
	return b.build(b.endpoints.Refill, b.spec.RefillAction, params)
}

func (b *Builder) Cancel(orderIDs []string) (Request, error) {
	params := url.Values{}
	params.Set(b.spec.OrdersParam, strings.Join(orderIDs, ","))
	return b.build(b.endpoints.Cancel, b.spec.CancelAction, params)
}

// build applies the three-way encoding contract: json encoding sends a JSON
// body, query encoding (or any GET request) puts everything in the URL, and
// everything else is form-encoded. Providers fail silently when this branch
// is wrong, so it is kept in one place.
func (b *Builder) build(endpoint, action string, params url.Values) (Request, error) {
	target := endpoint
	if target == "" {
		target = b.baseURL
	}
	if target == "" {
		return Request{}, fmt.Errorf("no endpoint configured for action %q", action)
	}

	params.Set(b.spec.KeyParam, b.apiKey)
	params.Set(b.spec.ActionParam, action)

	header := http.Header{}
	req := Request{Method: b.method, Header: header}

	switch {
	case b.method == http.MethodGet || b.spec.Encoding == EncodingQuery:
		u, err := url.Parse(target)
		if err != nil {
			return Request{}, fmt.Errorf("bad endpoint %q: %w", target, err)
		}
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
		req.URL = u.String()

	case b.spec.Encoding == EncodingJSON:
		flat := make(map[string]string, len(params))
		for k := range params {
			flat[k] = params.Get(k)
		}
		body, err := json.Marshal(flat)
		if err != nil {
			return Request{}, err
		}
		header.Set("Content-Type", "application/json")
		req.URL = target
		req.Body = string(body)

	default:
		header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.URL = target
		req.Body = params.Encode()
	}

	return req, nil
}
