package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"contractdesk/internal/types"
)

func TestNormalizeCurrencySet(t *testing.T) {
	tests := []struct {
		name string
		in   types.CurrencySet
		want types.CurrencySet
	}{
		{
			name: "dedupes and upper-cases",
			in:   types.CurrencySet{Supported: codes(" usd", "EUR", "USD", ""), Default: "eur"},
			want: types.CurrencySet{Supported: codes("USD", "EUR"), Default: "EUR"},
		},
		{
			name: "removed default replaced by first",
			in:   types.CurrencySet{Supported: codes("EUR", "GBP"), Default: "USD"},
			want: types.CurrencySet{Supported: codes("EUR", "GBP"), Default: "EUR"},
		},
		{
			name: "empty set clears default",
			in:   types.CurrencySet{Default: "USD"},
			want: types.CurrencySet{Supported: []types.CurrencyCode{}, Default: ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCurrencySet(tt.in))
		})
	}
}

func TestAddedRemovedCurrencies(t *testing.T) {
	prev := types.CurrencySet{Supported: codes("USD", "EUR")}
	next := types.CurrencySet{Supported: codes("EUR", "GBP", "JPY")}

	assert.Equal(t, codes("GBP", "JPY"), AddedCurrencies(prev, next))
	assert.Equal(t, codes("USD"), RemovedCurrencies(prev, next))
}
