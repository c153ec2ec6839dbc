package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractdesk/internal/types"
)

func TestDecodeTiers_FoldsLegacyBasePrice(t *testing.T) {
	raw := []byte(`[
		{"id":"t1","minValue":0,"maxValue":9,"basePrice":25,"label":"0 - 9 Users"},
		{"id":"t2","min_value":10,"max_value":null,"price":40,"label":"10+ Users"},
		{"id":"t3","min_value":0,"max_value":9,"base_price":3,"prices":{"USD":5,"EUR":4}}
	]`)

	got, err := DecodeTiers(raw, "USD")

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, types.PriceMap{"USD": 25}, got[0].Prices)
	assert.Equal(t, int64(9), *got[0].MaxValue)
	assert.Equal(t, types.PriceMap{"USD": 40}, got[1].Prices)
	assert.Equal(t, 40.0, got[1].BasePrice)
	assert.Nil(t, got[1].MaxValue)
	assert.Equal(t, types.PriceMap{"USD": 5, "EUR": 4}, got[2].Prices)
	assert.Equal(t, 5.0, got[2].BasePrice)
}

func TestDecodeFeatures_OnlySpecialGetLegacyPrice(t *testing.T) {
	raw := []byte(`[
		{"feature_id":"a","is_special_feature":true,"price":12},
		{"feature_id":"b","price":7}
	]`)

	got, err := DecodeFeatures(raw, "EUR")

	require.NoError(t, err)
	assert.Equal(t, types.PriceMap{"EUR": 12}, got[0].Prices)
	assert.Nil(t, got[1].Prices)
}

func TestDecodeNotifications_UnitPriceFallback(t *testing.T) {
	raw := []byte(`[{"method":"Email","category":"Direct","unitPrice":0.1}]`)

	got, err := DecodeNotifications(raw, "USD")

	require.NoError(t, err)
	assert.Equal(t, types.PriceMap{"USD": 0.1}, got[0].Prices)
}

func TestDecode_EmptyAndInvalid(t *testing.T) {
	got, err := DecodeTiers(nil, "USD")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = DecodeNotifications([]byte(`{`), "USD")
	assert.Error(t, err)
}
