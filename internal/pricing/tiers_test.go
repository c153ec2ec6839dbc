package pricing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractdesk/internal/types"
)

func stubTierIDs(t *testing.T) {
	t.Helper()
	n := 0
	orig := newTierID
	newTierID = func() string {
		n++
		return fmt.Sprintf("tier_%d", n)
	}
	t.Cleanup(func() { newTierID = orig })
}

func TestTierLabel(t *testing.T) {
	tests := []struct {
		name     string
		min      int64
		max      *int64
		planType types.PlanType
		want     string
	}{
		{"bounded per user", 0, int64p(9), types.PlanTypePerUser, "0 - 9 Users"},
		{"unbounded per contract", 100, nil, types.PlanTypePerContract, "100+ Contracts"},
		{"bounded per contract", 10, int64p(19), types.PlanTypePerContract, "10 - 19 Contracts"},
		{"unbounded per user", 50, nil, types.PlanTypePerUser, "50+ Users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierLabel(tt.min, tt.max, tt.planType))
		})
	}
}

func TestNextTierRange(t *testing.T) {
	min, max := NextTierRange(nil)
	assert.Equal(t, int64(0), min)
	assert.Equal(t, int64(9), max)

	min, max = NextTierRange(&types.TierRow{MinValue: 0, MaxValue: int64p(9)})
	assert.Equal(t, int64(10), min)
	assert.Equal(t, int64(19), max)

	min, max = NextTierRange(&types.TierRow{MinValue: 50})
	assert.Equal(t, int64(60), min)
	assert.Equal(t, int64(69), max)
}

func TestAddTier(t *testing.T) {
	stubTierIDs(t)

	rows := AddTier(nil, types.PlanTypePerUser, codes("USD", "EUR"))
	rows = AddTier(rows, types.PlanTypePerUser, codes("USD", "EUR"))

	require.Len(t, rows, 2)
	assert.Equal(t, "tier_1", rows[0].ID)
	assert.Equal(t, "0 - 9 Users", rows[0].Label)
	assert.Equal(t, "tier_2", rows[1].ID)
	assert.Equal(t, int64(10), rows[1].MinValue)
	assert.Equal(t, int64(19), *rows[1].MaxValue)
	assert.Equal(t, "10 - 19 Users", rows[1].Label)
	assert.Equal(t, types.PriceMap{"USD": 0, "EUR": 0}, rows[1].Prices)
}

func TestSetTierRange_RegeneratesLabel(t *testing.T) {
	rows := types.TierRows{{ID: "t", MinValue: 0, MaxValue: int64p(9), Label: "0 - 9 Contracts"}}

	got, err := SetTierRange(rows, 0, 100, nil, types.PlanTypePerContract)

	require.NoError(t, err)
	assert.Nil(t, got[0].MaxValue)
	assert.Equal(t, "100+ Contracts", got[0].Label)
	assert.Equal(t, "0 - 9 Contracts", rows[0].Label)
}

func TestSetTierRange_RejectsInverted(t *testing.T) {
	rows := types.TierRows{{ID: "t", MinValue: 0, MaxValue: int64p(9)}}

	got, err := SetTierRange(rows, 0, 10, int64p(5), types.PlanTypePerUser)

	assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidRange))
	assert.Equal(t, rows, got)
}

func TestRelabelTiers(t *testing.T) {
	rows := types.TierRows{
		{ID: "a", MinValue: 0, MaxValue: int64p(9), Label: "0 - 9 Users"},
		{ID: "b", MinValue: 10, Label: "10+ Users"},
	}

	same := RelabelTiers(rows, types.PlanTypePerUser)
	assert.Same(t, &rows[0], &same[0])

	got := RelabelTiers(rows, types.PlanTypePerContract)
	assert.Equal(t, "0 - 9 Contracts", got[0].Label)
	assert.Equal(t, "10+ Contracts", got[1].Label)
}

func TestRemoveTier(t *testing.T) {
	rows := types.TierRows{{ID: "a"}, {ID: "b"}}

	got, err := RemoveTier(rows, 0)

	require.NoError(t, err)
	assert.Equal(t, types.TierRows{{ID: "b"}}, got)
}

func TestSyncBasePrices(t *testing.T) {
	rows := types.TierRows{
		{ID: "a", BasePrice: 10, Prices: types.PriceMap{"USD": 10, "EUR": 9}},
		{ID: "b", BasePrice: 0, Prices: types.PriceMap{"USD": 20, "EUR": 18}},
	}

	same := SyncBasePrices(rows[:1], "USD")
	assert.Same(t, &rows[0], &same[0])

	got := SyncBasePrices(rows, "EUR")
	assert.Equal(t, 9.0, got[0].BasePrice)
	assert.Equal(t, 18.0, got[1].BasePrice)
	assert.Equal(t, 10.0, rows[0].BasePrice, "input must not be modified")
}
