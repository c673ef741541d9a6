package provider

import (
	"testing"

	"github.com/smmpanel/panelsync/internal/model"
)

func TestMapStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"pending", model.StatusPending},
		{"Pending", model.StatusPending},
		{"processing", model.StatusProcessing},
		{"in progress", model.StatusProcessing},
		{"in_progress", model.StatusProcessing},
		{"Inprogress", model.StatusProcessing},
		{"complete", model.StatusCompleted},
		{"Completed", model.StatusCompleted},
		{"partial", model.StatusPartial},
		{"canceled", model.StatusCancelled},
		{"CANCELLED", model.StatusCancelled},
		{"refunded", model.StatusRefunded},
		{"fail", model.StatusFailed},
		{"failed", model.StatusFailed},
		{"error", model.StatusFailed},
		{" completed ", model.StatusCompleted},

		// Anything unrecognized falls back to pending, never to an error.
		{"", model.StatusPending},
		{"awaiting", model.StatusPending},
		{"banana", model.StatusPending},
		{"42", model.StatusPending},
	}

	for _, tt := range tests {
		if got := MapStatus(tt.raw); got != tt.want {
			t.Errorf("MapStatus(%q): expected %q, got %q", tt.raw, tt.want, got)
		}
	}
}
