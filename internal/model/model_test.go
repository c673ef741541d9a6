package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompensationFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		usdPrice       string
		currency       string
		dollarRate     string
		priorStatus    string
		wantPrice      string
		wantAdjustment string
	}{
		{
			name:     "usd user no conversion",
			usdPrice: "2.00", currency: "USD", dollarRate: "120", priorStatus: StatusProcessing,
			wantPrice: "2.00", wantAdjustment: "2.00",
		},
		{
			name:     "converted with stored rate",
			usdPrice: "2.00", currency: "BDT", dollarRate: "120", priorStatus: StatusProcessing,
			wantPrice: "240.00", wantAdjustment: "240.00",
		},
		{
			name:     "zero rate falls back",
			usdPrice: "1", currency: "BDT", dollarRate: "0", priorStatus: StatusInProgress,
			wantPrice: "121.52", wantAdjustment: "121.52",
		},
		{
			// A pending order never had its price counted as spend, so only
			// the balance moves.
			name:     "pending order keeps total_spent",
			usdPrice: "2.00", currency: "BDT", dollarRate: "120", priorStatus: StatusPending,
			wantPrice: "240.00", wantAdjustment: "0",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			comp := CompensationFor(d(tt.usdPrice), tt.currency, d(tt.dollarRate), tt.priorStatus)

			if !comp.OrderPrice.Equal(d(tt.wantPrice)) {
				t.Errorf("order price: expected %s, got %s", tt.wantPrice, comp.OrderPrice)
			}
			if !comp.SpentAdjustment.Equal(d(tt.wantAdjustment)) {
				t.Errorf("spent adjustment: expected %s, got %s", tt.wantAdjustment, comp.SpentAdjustment)
			}
		})
	}
}

func TestCompensationFor_Conservation(t *testing.T) {
	t.Parallel()

	oldBalance := d("310.4801")
	oldSpent := d("1250.75")

	comp := CompensationFor(d("2.00"), "BDT", d("120"), StatusProcessing)

	newBalance := oldBalance.Add(comp.OrderPrice)
	newSpent := oldSpent.Sub(comp.SpentAdjustment)

	if !newBalance.Equal(d("550.4801")) {
		t.Errorf("balance conservation broken: %s", newBalance)
	}
	if !newSpent.Equal(d("1010.75")) {
		t.Errorf("total_spent conservation broken: %s", newSpent)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusPending, StatusPending, false},

		// Terminal statuses are sticky...
		{StatusCancelled, StatusProcessing, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusFailed, StatusProcessing, false},
		{StatusRefunded, StatusCompleted, false},

		// ...except completed may be revised to partial.
		{StatusCompleted, StatusPartial, true},
		{StatusCompleted, StatusProcessing, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s): expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestIsCancelledStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"cancelled", "canceled", "Cancelled", "CANCELED"} {
		if !IsCancelledStatus(s) {
			t.Errorf("%q must count as cancelled", s)
		}
	}
	for _, s := range []string{"", "pending", "cancel"} {
		if IsCancelledStatus(s) {
			t.Errorf("%q must not count as cancelled", s)
		}
	}
}

func TestProviderLinked(t *testing.T) {
	t.Parallel()

	empty := ""
	id := "778101"

	if (Order{}).ProviderLinked() {
		t.Error("order without provider order id must not be linked")
	}
	if (Order{ProviderOrderID: &empty}).ProviderLinked() {
		t.Error("empty provider order id must not be linked")
	}
	if !(Order{ProviderOrderID: &id}).ProviderLinked() {
		t.Error("order with provider order id must be linked")
	}
}
