package repositories_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psgc-data/psgc-engine/pkg/config"
	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/repositories"
	"github.com/psgc-data/psgc-engine/pkg/testhelpers"
)

var strategies = []string{config.StrategyTransactional, config.StrategyShadow}

func smallDataset(regionName string) *models.Dataset {
	region := "1300000000"
	province := "1376000000"
	return &models.Dataset{
		Locations: []models.LocationRow{
			{Code: region, Name: regionName, LevelCode: "Reg"},
			{Code: province, Name: "NCR, Fourth District", LevelCode: "Prov", ParentCode: &region},
			{Code: "1376030000", Name: "City of Makati", LevelCode: "City", ParentCode: &province},
		},
		Population: []models.PopulationRow{
			{Code: region, ReferenceYear: 2024, Population: 13484462, Source: "2024 POPCEN (PSA)"},
			{Code: "1376030000", ReferenceYear: 2024, Population: 629616, Source: "2024 POPCEN (PSA)"},
		},
		CityClasses: []models.CityClassRow{
			{Code: "1376030000", ClassCode: "HUC", Source: "2024 POPCEN (PSA)"},
		},
	}
}

func stageAll(t *testing.T, ctx context.Context, session repositories.LoadSession, ds *models.Dataset) {
	t.Helper()
	for _, table := range ds.Tables() {
		n, err := session.ReplaceTable(ctx, table)
		require.NoError(t, err)
		require.Equal(t, int64(len(table.Rows)), n)
	}
}

func loadAndCommit(t *testing.T, ctx context.Context, repo repositories.DatasetRepository, ds *models.Dataset) {
	t.Helper()
	session, err := repo.Begin(ctx)
	require.NoError(t, err)
	stageAll(t, ctx, session, ds)
	require.NoError(t, session.Commit(ctx))
}

func liveCount(t *testing.T, testDB *testhelpers.TestDB, table string) int64 {
	t.Helper()
	var n int64
	err := testDB.DB.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n)
	require.NoError(t, err)
	return n
}

func liveRegionName(t *testing.T, testDB *testhelpers.TestDB) string {
	t.Helper()
	var name string
	err := testDB.DB.QueryRow(context.Background(),
		"SELECT name FROM locations WHERE level_code = 'Reg' ORDER BY psgc_code LIMIT 1").Scan(&name)
	require.NoError(t, err)
	return name
}

func TestDatasetRepository_LoadAndCommit(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			testhelpers.TruncateAll(t, testDB.DB)
			repo, err := repositories.NewDatasetRepository(testDB.DB, strategy)
			require.NoError(t, err)

			loadAndCommit(t, ctx, repo, smallDataset("NCR"))

			assert.Equal(t, int64(3), liveCount(t, testDB, "locations"))
			assert.Equal(t, int64(2), liveCount(t, testDB, "population_stats"))
			assert.Equal(t, int64(1), liveCount(t, testDB, "city_classifications"))
			assert.Equal(t, "NCR", liveRegionName(t, testDB))
		})
	}
}

func TestDatasetRepository_RollbackPreservesOldState(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			testhelpers.TruncateAll(t, testDB.DB)
			repo, err := repositories.NewDatasetRepository(testDB.DB, strategy)
			require.NoError(t, err)

			loadAndCommit(t, ctx, repo, smallDataset("NCR (old)"))

			// Stage a replacement, then abandon it.
			session, err := repo.Begin(ctx)
			require.NoError(t, err)
			stageAll(t, ctx, session, smallDataset("NCR (new)"))
			require.NoError(t, session.Rollback(ctx))

			assert.Equal(t, "NCR (old)", liveRegionName(t, testDB))
			assert.Equal(t, int64(3), liveCount(t, testDB, "locations"))
			assert.Equal(t, int64(2), liveCount(t, testDB, "population_stats"))
		})
	}
}

func TestDatasetRepository_ConcurrentReaderSeesConsistentState(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			testhelpers.TruncateAll(t, testDB.DB)
			repo, err := repositories.NewDatasetRepository(testDB.DB, strategy)
			require.NoError(t, err)

			loadAndCommit(t, ctx, repo, smallDataset("NCR (old)"))

			session, err := repo.Begin(ctx)
			require.NoError(t, err)
			stageAll(t, ctx, session, smallDataset("NCR (new)"))

			// Mid-load, a reader on another connection still sees the full
			// pre-load dataset - not empty, not partial.
			assert.Equal(t, "NCR (old)", liveRegionName(t, testDB))
			assert.Equal(t, int64(3), liveCount(t, testDB, "locations"))
			assert.Equal(t, int64(2), liveCount(t, testDB, "population_stats"))

			require.NoError(t, session.Commit(ctx))
			assert.Equal(t, "NCR (new)", liveRegionName(t, testDB))
		})
	}
}

func TestDatasetRepository_ValidationQueries(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			testhelpers.TruncateAll(t, testDB.DB)
			repo, err := repositories.NewDatasetRepository(testDB.DB, strategy)
			require.NoError(t, err)

			session, err := repo.Begin(ctx)
			require.NoError(t, err)
			defer session.Rollback(ctx) //nolint:errcheck

			stageAll(t, ctx, session, smallDataset("NCR"))

			n, err := session.TableCount(ctx, models.TableLocations)
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)

			orphans, err := session.OrphanCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), orphans)

			dangling, err := session.DanglingCount(ctx, models.TableCityClasses)
			require.NoError(t, err)
			assert.Equal(t, int64(0), dangling)

			sample, err := session.SampleRead(ctx)
			require.NoError(t, err)
			assert.Equal(t, "NCR", sample)
		})
	}
}

func TestDatasetRepository_ShadowDetectsDanglingReferences(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	testhelpers.TruncateAll(t, testDB.DB)
	repo, err := repositories.NewDatasetRepository(testDB.DB, config.StrategyShadow)
	require.NoError(t, err)

	ds := smallDataset("NCR")
	ds.CityClasses = append(ds.CityClasses, models.CityClassRow{
		Code: "9999999999", ClassCode: "HUC", Source: "2024 POPCEN (PSA)",
	})

	session, err := repo.Begin(ctx)
	require.NoError(t, err)
	defer session.Rollback(ctx) //nolint:errcheck

	// Shadow tables carry no foreign keys; the defect must surface in the
	// validation query instead.
	stageAll(t, ctx, session, ds)
	dangling, err := session.DanglingCount(ctx, models.TableCityClasses)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dangling)
}

func TestDatasetRepository_TransactionalRejectsDanglingReferences(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	testhelpers.TruncateAll(t, testDB.DB)
	repo, err := repositories.NewDatasetRepository(testDB.DB, config.StrategyTransactional)
	require.NoError(t, err)

	ds := smallDataset("NCR")
	ds.CityClasses = append(ds.CityClasses, models.CityClassRow{
		Code: "9999999999", ClassCode: "HUC", Source: "2024 POPCEN (PSA)",
	})

	session, err := repo.Begin(ctx)
	require.NoError(t, err)
	defer session.Rollback(ctx) //nolint:errcheck

	var copyErr error
	for _, table := range ds.Tables() {
		if _, err := session.ReplaceTable(ctx, table); err != nil {
			copyErr = err
			break
		}
	}
	require.Error(t, copyErr, "foreign key must reject the dangling row")

	var storeErr *repositories.StoreError
	require.True(t, errors.As(copyErr, &storeErr))
	assert.False(t, storeErr.IsRetryable(), "constraint violations must not be retried")
}

func TestDatasetRepository_IdempotentRerun(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			testhelpers.TruncateAll(t, testDB.DB)
			repo, err := repositories.NewDatasetRepository(testDB.DB, strategy)
			require.NoError(t, err)

			loadAndCommit(t, ctx, repo, smallDataset("NCR"))
			loadAndCommit(t, ctx, repo, smallDataset("NCR"))

			assert.Equal(t, int64(3), liveCount(t, testDB, "locations"))
			assert.Equal(t, int64(2), liveCount(t, testDB, "population_stats"))
			assert.Equal(t, int64(1), liveCount(t, testDB, "city_classifications"))
		})
	}
}
