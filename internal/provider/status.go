package provider

import (
	"strings"

	"github.com/smmpanel/panelsync/internal/model"
)

var statusTable = map[string]string{
	"pending":     model.StatusPending,
	"processing":  model.StatusProcessing,
	"in progress": model.StatusProcessing,
	"in_progress": model.StatusProcessing,
	"inprogress":  model.StatusProcessing,
	"complete":    model.StatusCompleted,
	"completed":   model.StatusCompleted,
	"partial":     model.StatusPartial,
	"canceled":    model.StatusCancelled,
	"cancelled":   model.StatusCancelled,
	"refunded":    model.StatusRefunded,
	"fail":        model.StatusFailed,
	"failed":      model.StatusFailed,
	"error":       model.StatusFailed,
}

// MapStatus folds a provider's free-text status onto the local status set.
// Anything unrecognized maps to pending, so a placeholder or garbage response
// never advances or regresses an order.
func MapStatus(raw string) string {
	if mapped, ok := statusTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return mapped
	}
	return model.StatusPending
}
