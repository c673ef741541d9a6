package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/smmpanel/panelsync/internal/customerror"
	"github.com/smmpanel/panelsync/internal/model"
)

// Mapping translates logical response fields to gjson paths in a provider's
// raw response. A nil or empty mapping reads fields by their standard panel
// names, which is the zero-config path for conforming providers.
type Mapping map[string]string

// MappingFor parses a provider's JSON-encoded response-field mapping.
func MappingFor(p model.Provider) (Mapping, error) {
	if p.ResponseMapping == nil || strings.TrimSpace(*p.ResponseMapping) == "" {
		return nil, nil
	}
	var m Mapping
	if err := json.Unmarshal([]byte(*p.ResponseMapping), &m); err != nil {
		return nil, fmt.Errorf("can't parse response mapping: %w", err)
	}
	return m, nil
}

func (m Mapping) path(field string) string {
	if p, ok := m[field]; ok && p != "" {
		return p
	}
	return field
}

// ParseAddOrder extracts the provider-assigned order id from a place-order
// response, plus the charge if the provider echoed one back.
func ParseAddOrder(raw []byte, m Mapping) (string, decimal.Decimal, error) {
	root, err := parseObject(raw)
	if err != nil {
		return "", decimal.Zero, err
	}
	id := root.Get(m.path("order"))
	if !id.Exists() || id.String() == "" {
		return "", decimal.Zero, &customerror.MalformedResponse{Reason: "missing order id"}
	}
	return id.String(), toDecimal(root.Get(m.path("charge"))), nil
}

// ParseStatus extracts a normalized status payload. Providers are not
// contractually reliable about types, so numbers may arrive as strings and
// absent fields default to zero.
func ParseStatus(raw []byte, m Mapping) (model.ProviderStatusInfo, error) {
	root, err := parseObject(raw)
	if err != nil {
		return model.ProviderStatusInfo{}, err
	}
	return model.ProviderStatusInfo{
		Charge:     toDecimal(root.Get(m.path("charge"))),
		StartCount: toInt(root.Get(m.path("start_count"))),
		Status:     root.Get(m.path("status")).String(),
		Remains:    toInt(root.Get(m.path("remains"))),
		Currency:   root.Get(m.path("currency")).String(),
	}, nil
}

// ParseBalance extracts a query-balance response.
func ParseBalance(raw []byte, m Mapping) (model.ProviderBalance, error) {
	root, err := parseObject(raw)
	if err != nil {
		return model.ProviderBalance{}, err
	}
	return model.ProviderBalance{
		Balance:  toDecimal(root.Get(m.path("balance"))),
		Currency: root.Get(m.path("currency")).String(),
	}, nil
}

// ParseServices extracts a provider's service catalog.
func ParseServices(raw []byte, m Mapping) ([]model.RemoteService, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &customerror.MalformedResponse{Reason: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(raw)
	if rejected := rejection(root); rejected != nil {
		return nil, rejected
	}
	if !root.IsArray() {
		return nil, &customerror.MalformedResponse{Reason: "services response is not an array"}
	}

	var services []model.RemoteService
	root.ForEach(func(_, row gjson.Result) bool {
		services = append(services, model.RemoteService{
			ServiceID: row.Get(m.path("service")).String(),
			Name:      row.Get(m.path("name")).String(),
			Type:      row.Get(m.path("type")).String(),
			Category:  row.Get(m.path("category")).String(),
			Rate:      toDecimal(row.Get(m.path("rate"))),
			Min:       toInt(row.Get(m.path("min"))),
			Max:       toInt(row.Get(m.path("max"))),
			Refill:    toBool(row.Get(m.path("refill"))),
			Cancel:    toBool(row.Get(m.path("cancel"))),
		})
		return true
	})
	return services, nil
}

func parseObject(raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, &customerror.MalformedResponse{Reason: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return gjson.Result{}, &customerror.MalformedResponse{Reason: "response is not an object"}
	}
	if rejected := rejection(root); rejected != nil {
		return gjson.Result{}, rejected
	}
	return root, nil
}

// rejection detects a well-formed provider error payload.
func rejection(root gjson.Result) error {
	errField := root.Get("error")
	if errField.Exists() && errField.String() != "" && errField.String() != "false" {
		return &customerror.ProviderRejected{Message: errField.String()}
	}
	return nil
}

func toDecimal(r gjson.Result) decimal.Decimal {
	switch r.Type {
	case gjson.Number:
		return decimal.NewFromFloat(r.Num)
	case gjson.String:
		d, err := decimal.NewFromString(strings.TrimSpace(r.Str))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func toInt(r gjson.Result) int {
	switch r.Type {
	case gjson.Number:
		return int(r.Int())
	case gjson.String:
		d, err := decimal.NewFromString(strings.TrimSpace(r.Str))
		if err != nil {
			return 0
		}
		return int(d.IntPart())
	default:
		return 0
	}
}

func toBool(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num == 1
	case gjson.String:
		s := strings.ToLower(strings.TrimSpace(r.Str))
		return s == "true" || s == "1"
	default:
		return false
	}
}
