// Package forwarder submits locally-created orders to their providers and
// fetches provider balances. Placement failures never leave an order stuck
// pending: the order is marked failed with a normalized diagnostic string.
package forwarder

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/smmpanel/panelsync/internal/customerror"
	"github.com/smmpanel/panelsync/internal/model"
	"github.com/smmpanel/panelsync/internal/provider"
)

// Store is the slice of persistence the forwarder needs.
type Store interface {
	UpdateOrderForwarded(ctx context.Context, orderID int, providerOrderID, providerStatus string, charge decimal.Decimal, apiResponse string) error
	MarkOrderFailed(ctx context.Context, orderID int, reason string) error
	UpdateProviderBalance(ctx context.Context, providerID int, balance model.ProviderBalance) error
	AppendProviderLog(ctx context.Context, entry model.ProviderOrderLog) error
}

type Forwarder struct {
	store  Store
	caller *provider.Caller
}

func New(store Store, caller *provider.Caller) *Forwarder {
	return &Forwarder{store: store, caller: caller}
}

// Forward places one order at its provider. On success the provider order id
// and initial status are persisted; on any failure the order flips to failed
// with the normalized error string stored for diagnostics. The audit log
// records the attempt either way.
func (f *Forwarder) Forward(ctx context.Context, p model.Provider, svc model.Service, order model.Order, runs, interval int) (string, error) {
	raw, providerOrderID, err := f.place(ctx, p, svc, order, runs, interval)
	if err != nil {
		reason := customerror.Normalize(err)
		if errMark := f.store.MarkOrderFailed(ctx, order.ID, reason); errMark != nil {
			log.Printf("can't mark order %d failed: %v", order.ID, errMark)
		}
		f.appendLog(ctx, order.ID, p.ID, model.LogActionAddOrder, model.LogStatusFailed, reason)
		return "", err
	}

	f.appendLog(ctx, order.ID, p.ID, model.LogActionAddOrder, model.LogStatusSuccess, string(raw))
	return providerOrderID, nil
}

func (f *Forwarder) place(ctx context.Context, p model.Provider, svc model.Service, order model.Order, runs, interval int) ([]byte, string, error) {
	builder, err := provider.BuilderFor(p)
	if err != nil {
		return nil, "", err
	}
	mapping, err := provider.MappingFor(p)
	if err != nil {
		return nil, "", err
	}

	req, err := builder.AddOrder(svc.ProviderServiceID, order.Link, order.Quantity, runs, interval)
	if err != nil {
		return nil, "", err
	}

	raw, err := f.caller.Do(ctx, req, provider.Timeout(p))
	if err != nil {
		return raw, "", err
	}

	providerOrderID, charge, err := provider.ParseAddOrder(raw, mapping)
	if err != nil {
		return raw, "", err
	}

	errStore := f.store.UpdateOrderForwarded(ctx, order.ID, providerOrderID, model.StatusPending, charge, string(raw))
	if errStore != nil {
		return raw, "", errStore
	}

	return raw, providerOrderID, nil
}

// GetBalance queries a provider's balance and caches it on the provider
// record with a checked-at timestamp. Balance calls are rate-limited at most
// providers; callers must not re-query more than once per admin check.
func (f *Forwarder) GetBalance(ctx context.Context, p model.Provider) (model.ProviderBalance, error) {
	builder, err := provider.BuilderFor(p)
	if err != nil {
		return model.ProviderBalance{}, err
	}
	mapping, err := provider.MappingFor(p)
	if err != nil {
		return model.ProviderBalance{}, err
	}

	req, err := builder.Balance()
	if err != nil {
		return model.ProviderBalance{}, err
	}

	raw, err := f.caller.Do(ctx, req, provider.Timeout(p))
	if err != nil {
		f.appendLog(ctx, 0, p.ID, model.LogActionBalanceCheck, model.LogStatusFailed, customerror.Normalize(err))
		return model.ProviderBalance{}, err
	}

	balance, err := provider.ParseBalance(raw, mapping)
	if err != nil {
		f.appendLog(ctx, 0, p.ID, model.LogActionBalanceCheck, model.LogStatusFailed, customerror.Normalize(err))
		return model.ProviderBalance{}, err
	}

	if errStore := f.store.UpdateProviderBalance(ctx, p.ID, balance); errStore != nil {
		log.Printf("can't cache balance for provider %d: %v", p.ID, errStore)
	}
	f.appendLog(ctx, 0, p.ID, model.LogActionBalanceCheck, model.LogStatusSuccess, string(raw))

	return balance, nil
}

// GetServices fetches a provider's service catalog, used when importing
// services into the local catalog.
func (f *Forwarder) GetServices(ctx context.Context, p model.Provider) ([]model.RemoteService, error) {
	builder, err := provider.BuilderFor(p)
	if err != nil {
		return nil, err
	}
	mapping, err := provider.MappingFor(p)
	if err != nil {
		return nil, err
	}

	req, err := builder.Services()
	if err != nil {
		return nil, err
	}

	raw, err := f.caller.Do(ctx, req, provider.Timeout(p))
	if err != nil {
		return nil, err
	}

	return provider.ParseServices(raw, mapping)
}

func (f *Forwarder) appendLog(ctx context.Context, orderID, providerID int, action, status, response string) {
	entry := model.ProviderOrderLog{
		OrderID:    orderID,
		ProviderID: providerID,
		Action:     action,
		Status:     status,
		Response:   response,
	}
	if err := f.store.AppendProviderLog(ctx, entry); err != nil {
		log.Printf("can't append provider log for order %d: %v", orderID, err)
	}
}
