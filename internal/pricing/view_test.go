package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"contractdesk/internal/types"
)

func TestCurrencyView_Init(t *testing.T) {
	tests := []struct {
		name    string
		active  types.CurrencyCode
		set     types.CurrencySet
		want    types.CurrencyCode
		changed bool
	}{
		{
			name:    "selects default",
			set:     types.CurrencySet{Supported: codes("USD", "EUR"), Default: "EUR"},
			want:    "EUR",
			changed: true,
		},
		{
			name:    "falls back to first when default unsupported",
			set:     types.CurrencySet{Supported: codes("USD", "EUR"), Default: "GBP"},
			want:    "USD",
			changed: true,
		},
		{
			name: "empty set leaves view uninitialised",
			set:  types.CurrencySet{},
			want: "",
		},
		{
			name:   "existing selection kept",
			active: "USD",
			set:    types.CurrencySet{Supported: codes("USD", "EUR"), Default: "EUR"},
			want:   "USD",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewCurrencyView(tt.active)
			changed := v.Init(tt.set)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, v.Active())
		})
	}
}

func TestCurrencyView_SelectDoesNotValidate(t *testing.T) {
	v := NewCurrencyView("USD")
	v.Select("XYZ")
	assert.Equal(t, types.CurrencyCode("XYZ"), v.Active())
}

func TestCurrencyView_Retarget(t *testing.T) {
	v := NewCurrencyView("GBP")
	changed := v.Retarget(types.CurrencySet{Supported: codes("USD", "EUR"), Default: "EUR"})
	assert.True(t, changed)
	assert.Equal(t, types.CurrencyCode("EUR"), v.Active())

	changed = v.Retarget(types.CurrencySet{Supported: codes("USD", "EUR"), Default: "USD"})
	assert.False(t, changed)
	assert.Equal(t, types.CurrencyCode("EUR"), v.Active())
}

func TestCurrencyView_PriceMissingKeyIsZero(t *testing.T) {
	v := NewCurrencyView("EUR")
	assert.Zero(t, v.Price(types.PriceMap{"USD": 3}))
	assert.Zero(t, v.Price(nil))
	assert.Equal(t, 3.0, NewCurrencyView("USD").Price(types.PriceMap{"USD": 3}))
}

func TestCurrencyView_SetPriceCopies(t *testing.T) {
	v := NewCurrencyView("EUR")
	orig := types.PriceMap{"USD": 3}

	got := v.SetPrice(orig, 7)

	assert.Equal(t, types.PriceMap{"USD": 3, "EUR": 7}, got)
	assert.Equal(t, types.PriceMap{"USD": 3}, orig)
}

func TestCurrencyView_SetTierPriceMirrorsDefault(t *testing.T) {
	tier := types.TierRow{ID: "t", Prices: types.PriceMap{"USD": 1, "EUR": 1}, BasePrice: 1}

	got := NewCurrencyView("USD").SetTierPrice(tier, "USD", 12)
	assert.Equal(t, 12.0, got.Prices["USD"])
	assert.Equal(t, 12.0, got.BasePrice)

	got = NewCurrencyView("EUR").SetTierPrice(tier, "USD", 8)
	assert.Equal(t, 8.0, got.Prices["EUR"])
	assert.Equal(t, 1.0, got.BasePrice)
}
