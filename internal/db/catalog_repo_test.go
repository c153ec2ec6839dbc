package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contractdesk/internal/types"
)

func methodRow(method string, credits, unit float64) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = method
		*dest[1].(*float64) = credits
		*dest[2].(*float64) = unit
		return nil
	}
}

func TestCatalogRepository_Methods_KeepsOrder(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCatalogRepository(db)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(methodRow("Email", 1, 0.05), methodRow("SMS", 2, 0.25)), nil)

	got, err := repo.Methods(context.Background())

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Email", got[0].Method)
	assert.Equal(t, 0.25, got.UnitPrice("SMS"))
}

func TestCatalogRepository_Methods_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCatalogRepository(db)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("timeout"))

	_, err := repo.Methods(context.Background())

	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}

func TestCatalogRepository_Feature(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCatalogRepository(db)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"sso"}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "sso"
			*dest[1].(*string) = "Single sign-on"
			*dest[2].(*int64) = 1
			*dest[3].(*int64) = 0
			*dest[4].(*bool) = true
			return nil
		}})
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"nope"}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	f, err := repo.Feature(context.Background(), "sso")
	require.NoError(t, err)
	assert.True(t, f.IsSpecialFeature)

	_, err = repo.Feature(context.Background(), "nope")
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundFeature))
}

func TestCatalogRepository_Features(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCatalogRepository(db)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(func(dest ...any) error {
			*dest[0].(*string) = "reports"
			*dest[1].(*string) = "Reports"
			*dest[2].(*int64) = 10
			*dest[3].(*int64) = 2
			*dest[4].(*bool) = false
			return nil
		}), nil)

	got, err := repo.Features(context.Background())

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].TrialLimit)
}
