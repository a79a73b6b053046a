package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstorehq/backoffice/pkg/store"
)

const gilbarcoSource = "GILBARCO_NAXML"

func TestDepartments_UpsertAndFullSyncDeactivation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, d := range []*store.Department{
			{CompanyID: "co-1", StoreID: "st-1", Code: "FUEL", POSCode: "001", Name: "Fuel", IsActive: true, POSSource: gilbarcoSource},
			{CompanyID: "co-1", StoreID: "st-1", Code: "CIGARETTES", POSCode: "010", Name: "Cigarettes", Taxable: true, IsActive: true, POSSource: gilbarcoSource},
			{CompanyID: "co-1", StoreID: "st-1", Code: "GROCERY", POSCode: "020", Name: "Grocery", Taxable: true, IsActive: true, POSSource: gilbarcoSource},
		} {
			if err := s.InsertDepartment(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		depts, err := s.ListDepartments(ctx, tx, "st-1", gilbarcoSource)
		require.NoError(t, err)
		require.Len(t, depts, 3)
		assert.Equal(t, "Cigarettes", depts["010"].Name)
		assert.False(t, depts["010"].LastSyncedAt.IsZero())

		d := depts["010"]
		d.Name = "Tobacco"
		require.NoError(t, s.UpdateDepartment(ctx, tx, d))

		// Full sync carried only 010 and 020; 001 gets deactivated.
		n, err := s.DeactivateDepartmentsExcept(ctx, tx, "st-1", gilbarcoSource, []string{"010", "020"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		depts, err := s.ListDepartments(ctx, tx, "st-1", gilbarcoSource)
		require.NoError(t, err)
		assert.Equal(t, "Tobacco", depts["010"].Name)
		assert.False(t, depts["001"].IsActive)
		assert.True(t, depts["020"].IsActive)

		// Re-running with the same keep set touches nothing.
		n, err := s.DeactivateDepartmentsExcept(ctx, tx, "st-1", gilbarcoSource, []string{"010", "020"})
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	})
	require.NoError(t, err)
}

func TestDeactivation_ScopedToSource(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, s.InsertTenderType(ctx, tx, &store.TenderType{
			CompanyID: "co-1", StoreID: "st-1", Code: "CASH", POSCode: "cash", IsActive: true, POSSource: gilbarcoSource,
		}))
		require.NoError(t, s.InsertTenderType(ctx, tx, &store.TenderType{
			CompanyID: "co-1", StoreID: "st-1", Code: "CASH", POSCode: "cash", IsActive: true, POSSource: "VERIFONE_NAXML",
		}))

		// A full Gilbarco sync with no tenders must not touch Verifone rows.
		n, err := s.DeactivateTenderTypesExcept(ctx, tx, "st-1", gilbarcoSource, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		verifone, err := s.ListTenderTypes(ctx, tx, "st-1", "VERIFONE_NAXML")
		require.NoError(t, err)
		assert.True(t, verifone["cash"].IsActive)
		return nil
	})
	require.NoError(t, err)
}

func TestTaxRates_Roundtrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		tr := &store.TaxRate{
			CompanyID: "co-1", StoreID: "st-1", Code: "STATE_TAX", POSCode: "101",
			Name: "State Tax", RatePercent: 6.25, IsActive: true, POSSource: gilbarcoSource,
		}
		require.NoError(t, s.InsertTaxRate(ctx, tx, tr))

		tr.RatePercent = 6.5
		require.NoError(t, s.UpdateTaxRate(ctx, tx, tr))

		rates, err := s.ListTaxRates(ctx, tx, "st-1", gilbarcoSource)
		require.NoError(t, err)
		assert.InDelta(t, 6.5, rates["101"].RatePercent, 1e-9)
		return nil
	})
	require.NoError(t, err)
}

func TestFindImportUser_FallbackChain(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.FindImportUser(ctx, s.DB(), "co-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	owner := &store.User{CompanyID: "co-1", Role: "owner"}
	require.NoError(t, s.CreateUser(ctx, owner))

	got, err := s.FindImportUser(ctx, s.DB(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.ID)

	imp := &store.User{CompanyID: "co-1", Role: "import"}
	require.NoError(t, s.CreateUser(ctx, imp))

	got, err = s.FindImportUser(ctx, s.DB(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, imp.ID, got.ID, "dedicated import user wins over owner")
}
