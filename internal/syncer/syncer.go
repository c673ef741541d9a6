// Package syncer reconciles forwarded orders against their providers: it
// polls current statuses, applies local state transitions and runs the
// balance compensation that accompanies a cancellation.
package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smmpanel/panelsync/internal/customerror"
	"github.com/smmpanel/panelsync/internal/model"
	"github.com/smmpanel/panelsync/internal/provider"
)

// Store is the slice of persistence the syncer needs. The compensation
// method must re-read the owner's balance inside its own transaction and
// apply all writes atomically.
type Store interface {
	ListSyncableOrders(ctx context.Context, userID, limit int) ([]model.Order, error)
	GetOrderForSync(ctx context.Context, orderID int) (model.Order, error)
	GetProvider(ctx context.Context, id int) (model.Provider, error)
	TouchOrderSync(ctx context.Context, orderID int) error
	ApplyOrderSync(ctx context.Context, orderID int, upd model.OrderSyncUpdate) error
	CompensateCancellation(ctx context.Context, order model.Order, upd model.OrderSyncUpdate) (model.CompensationResult, error)
	AppendProviderLog(ctx context.Context, entry model.ProviderOrderLog) error
}

// Options bound one reconciliation run. UserID zero means system-wide;
// Budget zero means no wall-clock limit.
type Options struct {
	UserID int
	Limit  int
	Budget time.Duration
}

type Syncer struct {
	store  Store
	caller *provider.Caller
}

func New(store Store, caller *provider.Caller) *Syncer {
	return &Syncer{store: store, caller: caller}
}

// Run drives one reconciliation batch: select syncable orders, group them by
// provider, skip inactive providers, and sync each group sequentially.
// Distinct providers proceed concurrently; orders of one provider never do,
// to stay inside unknown upstream rate limits. One order's failure is
// reported in its result and never aborts siblings.
func (s *Syncer) Run(ctx context.Context, opts Options) model.SyncSummary {
	summary := model.SyncSummary{RunID: uuid.NewString()}

	var deadline time.Time
	if opts.Budget > 0 {
		deadline = time.Now().Add(opts.Budget)
	}

	orders, err := s.store.ListSyncableOrders(ctx, opts.UserID, opts.Limit)
	if err != nil {
		log.Printf("sync run %s: can't select orders: %v", summary.RunID, err)
		return summary
	}
	summary.TotalChecked = len(orders)

	groups := make(map[int][]model.Order)
	var mu sync.Mutex
	for _, order := range orders {
		if order.ProviderID == nil {
			summary.Errored++
			summary.Results = append(summary.Results, model.SyncResult{
				OrderID: order.ID,
				Error:   "error: order has no resolvable provider",
			})
			continue
		}
		groups[*order.ProviderID] = append(groups[*order.ProviderID], order)
	}

	var g errgroup.Group
	for providerID, group := range groups {
		providerID, group := providerID, group
		g.Go(func() error {
			p, errProv := s.store.GetProvider(ctx, providerID)
			if errProv != nil {
				log.Printf("sync run %s: can't load provider %d: %v", summary.RunID, providerID, errProv)
				reason := customerror.Normalize(errProv)
				mu.Lock()
				for _, order := range group {
					summary.Errored++
					summary.Results = append(summary.Results, model.SyncResult{
						OrderID: order.ID,
						Error:   reason,
					})
				}
				mu.Unlock()
				return nil
			}
			if p.Status != model.ProviderActive {
				return nil
			}

			for _, order := range group {
				if !deadline.IsZero() && time.Now().After(deadline) {
					return nil
				}
				if ctx.Err() != nil {
					return nil
				}

				result := s.SyncOrder(ctx, summary.RunID, p, order)

				mu.Lock()
				summary.Results = append(summary.Results, result)
				switch {
				case result.Error != "":
					summary.Errored++
				case result.Updated:
					summary.Updated++
				default:
					summary.Unchanged++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return summary
}

// SyncOne reconciles a single order on demand.
func (s *Syncer) SyncOne(ctx context.Context, orderID int) (model.SyncResult, error) {
	order, err := s.store.GetOrderForSync(ctx, orderID)
	if err != nil {
		return model.SyncResult{}, err
	}
	if !order.ProviderLinked() || order.ProviderID == nil {
		return model.SyncResult{}, customerror.ErrNotLinked
	}

	p, err := s.store.GetProvider(ctx, *order.ProviderID)
	if err != nil {
		return model.SyncResult{}, err
	}

	return s.SyncOrder(ctx, uuid.NewString(), p, order), nil
}

// SyncOrder performs one reconciliation attempt for one provider-linked
// order. Every attempt, successful or not, appends an audit-log row.
func (s *Syncer) SyncOrder(ctx context.Context, runID string, p model.Provider, order model.Order) model.SyncResult {
	result := model.SyncResult{OrderID: order.ID}

	if !order.ProviderLinked() {
		result.Error = customerror.Normalize(customerror.ErrNotLinked)
		return result
	}

	raw, info, err := s.queryStatus(ctx, p, order)
	if err != nil {
		result.Error = customerror.Normalize(err)
		s.appendLog(ctx, runID, order.ID, p.ID, model.LogStatusFailed, result.Error)
		return result
	}

	mapped := provider.MapStatus(info.Status)

	newStatus := order.Status
	if mapped != order.Status && model.CanTransition(order.Status, mapped) {
		newStatus = mapped
	}

	hasChanges := newStatus != order.Status ||
		info.StartCount != order.StartCount ||
		info.Remains != order.Remains ||
		!info.Charge.Equal(order.Charge)

	if !hasChanges {
		if errTouch := s.store.TouchOrderSync(ctx, order.ID); errTouch != nil {
			result.Error = customerror.Normalize(errTouch)
			s.appendLog(ctx, runID, order.ID, p.ID, model.LogStatusFailed, result.Error)
			return result
		}
		s.appendLog(ctx, runID, order.ID, p.ID, model.LogStatusSuccess, string(raw))
		return result
	}

	upd := model.OrderSyncUpdate{
		Status:         newStatus,
		ProviderStatus: info.Status,
		StartCount:     info.StartCount,
		Remains:        info.Remains,
		Charge:         info.Charge,
		APIResponse:    string(raw),
	}

	// Compensation fires only on the transition into cancelled; re-observing
	// cancelled on an already-cancelled order must never refund twice.
	freshCancellation := newStatus == model.StatusCancelled && !model.IsCancelledStatus(order.Status)

	if freshCancellation {
		comp, errComp := s.store.CompensateCancellation(ctx, order, upd)
		if errComp != nil {
			result.Error = customerror.Normalize(errComp)
			s.appendLog(ctx, runID, order.ID, p.ID, model.LogStatusFailed, result.Error)
			return result
		}
		if !comp.Applied {
			// A concurrent run cancelled and compensated this order between
			// our read and the transaction; nothing was written.
			s.appendLog(ctx, runID, order.ID, p.ID, model.LogStatusSuccess, string(raw))
			return result
		}
		if !comp.UserFound {
			log.Printf("sync run %s: order %d: %v, compensation skipped", runID, order.ID, customerror.ErrUserMissing)
		}
	} else {
		if errApply := s.store.ApplyOrderSync(ctx, order.ID, upd); errApply != nil {
			result.Error = customerror.Normalize(errApply)
			s.appendLog(ctx, runID, order.ID, p.ID, model.LogStatusFailed, result.Error)
			return result
		}
	}

	s.appendLog(ctx, runID, order.ID, p.ID, model.LogStatusSuccess, string(raw))

	result.Updated = true
	result.OldStatus = order.Status
	result.NewStatus = newStatus
	result.Data = &info
	return result
}

func (s *Syncer) queryStatus(ctx context.Context, p model.Provider, order model.Order) ([]byte, model.ProviderStatusInfo, error) {
	builder, err := provider.BuilderFor(p)
	if err != nil {
		return nil, model.ProviderStatusInfo{}, err
	}
	mapping, err := provider.MappingFor(p)
	if err != nil {
		return nil, model.ProviderStatusInfo{}, err
	}

	req, err := builder.Status(*order.ProviderOrderID)
	if err != nil {
		return nil, model.ProviderStatusInfo{}, err
	}

	raw, err := s.caller.Do(ctx, req, provider.Timeout(p))
	if err != nil {
		return raw, model.ProviderStatusInfo{}, err
	}

	info, err := provider.ParseStatus(raw, mapping)
	if err != nil {
		return raw, model.ProviderStatusInfo{}, err
	}
	return raw, info, nil
}

func (s *Syncer) appendLog(ctx context.Context, runID string, orderID, providerID int, status, response string) {
	entry := model.ProviderOrderLog{
		RunID:      runID,
		OrderID:    orderID,
		ProviderID: providerID,
		Action:     model.LogActionStatusSync,
		Status:     status,
		Response:   response,
	}
	if err := s.store.AppendProviderLog(ctx, entry); err != nil {
		log.Printf("can't append provider log for order %d: %v", orderID, err)
	}
}
