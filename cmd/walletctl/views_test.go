package main

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/remittance/internal/wallet"
)

func TestOutstandingFeesSortedWithTotal(t *testing.T) {
	view := outstandingFees(&wallet.Record{Fees: map[string]decimal.Decimal{
		"c-2": decimal.RequireFromString("0.25"),
		"c-1": decimal.RequireFromString("5"),
	}})

	if len(view.Fees) != 2 || view.Fees[0].ContributionID != "c-1" {
		t.Fatalf("unexpected fees %+v", view.Fees)
	}
	if !view.Total.Equal(decimal.RequireFromString("5.25")) {
		t.Fatalf("unexpected total %s", view.Total)
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	view := redacted(&wallet.Record{
		Provider: "uphold",
		Status:   wallet.StatusVerified,
		Address:  "card-1234567890",
		Token:    "secret-token",
	})

	if view.Address == "card-1234567890" {
		t.Fatal("address must be redacted")
	}
	if !view.HasToken {
		t.Fatal("expected has_token")
	}
}
