package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/psgc-data/psgc-engine/pkg/apperrors"
	"github.com/psgc-data/psgc-engine/pkg/config"
	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/repositories"
)

// fakeSession stages tables in memory and answers validation queries from
// the staged rows unless a test overrides them.
type fakeSession struct {
	staged map[string][][]any

	replaceErr map[string]error
	countDelta map[string]int64
	danglingIn map[string]int64
	sample     *string
	commitErr  error

	onReplace func()

	committed  bool
	rolledBack bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		staged:     make(map[string][][]any),
		replaceErr: make(map[string]error),
		countDelta: make(map[string]int64),
		danglingIn: make(map[string]int64),
	}
}

func (s *fakeSession) ReplaceTable(ctx context.Context, table models.Table) (int64, error) {
	if s.onReplace != nil {
		s.onReplace()
	}
	if err := s.replaceErr[table.Name]; err != nil {
		return 0, err
	}
	s.staged[table.Name] = table.Rows
	return int64(len(table.Rows)), nil
}

func (s *fakeSession) TableCount(ctx context.Context, name string) (int64, error) {
	return int64(len(s.staged[name])) + s.countDelta[name], nil
}

func (s *fakeSession) OrphanCount(ctx context.Context) (int64, error) {
	var n int64
	for _, row := range s.staged[models.TableLocations] {
		level, _ := row[2].(string)
		parent, _ := row[3].(*string)
		if level != "Reg" && parent == nil {
			n++
		}
	}
	return n, nil
}

func (s *fakeSession) DanglingCount(ctx context.Context, table string) (int64, error) {
	return s.danglingIn[table], nil
}

func (s *fakeSession) SampleRead(ctx context.Context) (string, error) {
	if s.sample != nil {
		return *s.sample, nil
	}
	for _, row := range s.staged[models.TableLocations] {
		if level, _ := row[2].(string); level == "Reg" {
			name, _ := row[1].(string)
			return name, nil
		}
	}
	return "", nil
}

func (s *fakeSession) Commit(ctx context.Context) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committed = true
	return nil
}

func (s *fakeSession) Rollback(ctx context.Context) error {
	if !s.committed {
		s.rolledBack = true
	}
	return nil
}

var _ repositories.LoadSession = (*fakeSession)(nil)

// fakeRepo hands out one scripted session per load attempt.
type fakeRepo struct {
	sessions []*fakeSession
	next     int
}

func (r *fakeRepo) Begin(ctx context.Context) (repositories.LoadSession, error) {
	if r.next >= len(r.sessions) {
		return nil, errors.New("no more scripted sessions")
	}
	s := r.sessions[r.next]
	r.next++
	return s, nil
}

var _ repositories.DatasetRepository = (*fakeRepo)(nil)

func testLoadConfig() config.LoadConfig {
	return config.LoadConfig{
		Strict:             true,
		Strategy:           config.StrategyTransactional,
		MaxRetries:         2,
		RetryInitialDelay:  time.Millisecond,
		RetryMaxDelay:      5 * time.Millisecond,
		RetryBackoffFactor: 2.0,
	}
}

func testDataset() *models.Dataset {
	region := "1300000000"
	province := "1376000000"
	return &models.Dataset{
		Locations: []models.LocationRow{
			{Code: region, Name: "NCR", LevelCode: "Reg"},
			{Code: province, Name: "NCR, Fourth District", LevelCode: "Prov", ParentCode: &region},
			{Code: "1376030000", Name: "City of Makati", LevelCode: "City", ParentCode: &province},
		},
		Population: []models.PopulationRow{
			{Code: region, ReferenceYear: 2024, Population: 13484462, Source: "2024 POPCEN (PSA)"},
		},
		CityClasses: []models.CityClassRow{
			{Code: "1376030000", ClassCode: "HUC", Source: "2024 POPCEN (PSA)"},
		},
	}
}

func TestLoad_Success(t *testing.T) {
	session := newFakeSession()
	repo := &fakeRepo{sessions: []*fakeSession{session}}
	svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

	result, err := svc.Load(context.Background(), testDataset())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.StateIdle, result.FinalState)
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, session.committed)
	assert.False(t, session.rolledBack)
	assert.Equal(t, int64(3), result.TableRows[models.TableLocations])
	assert.Equal(t, int64(1), result.TableRows[models.TablePopulation])
	assert.Equal(t, int64(1), result.TableRows[models.TableCityClasses])
	assert.Equal(t, int64(0), result.TableRows[models.TableSettlementTags])
	assert.True(t, result.Validation.OK())
	assert.Equal(t, "NCR", result.Validation.SampleReadValue)
}

func TestLoad_RetriesTransientFailure(t *testing.T) {
	flaky := newFakeSession()
	flaky.replaceErr[models.TableLocations] = &repositories.StoreError{
		Op: "copy into locations", Err: errors.New("connection reset"), Retryable: true,
	}
	healthy := newFakeSession()
	repo := &fakeRepo{sessions: []*fakeSession{flaky, healthy}}
	svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

	result, err := svc.Load(context.Background(), testDataset())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.True(t, flaky.rolledBack)
	assert.True(t, healthy.committed)
}

func TestLoad_FatalFailureDoesNotRetry(t *testing.T) {
	session := newFakeSession()
	session.replaceErr[models.TablePopulation] = &repositories.StoreError{
		Op: "copy into population_stats", Err: errors.New("value too long for type"), Retryable: false,
	}
	repo := &fakeRepo{sessions: []*fakeSession{session, newFakeSession()}}
	svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

	result, err := svc.Load(context.Background(), testDataset())
	require.Error(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, session.rolledBack)
	assert.Equal(t, 1, repo.next, "must not begin a second attempt")
}

func TestLoad_RetriesExhausted(t *testing.T) {
	transient := func() *fakeSession {
		s := newFakeSession()
		s.replaceErr[models.TableLocations] = &repositories.StoreError{
			Op: "copy into locations", Err: errors.New("connection refused"), Retryable: true,
		}
		return s
	}
	repo := &fakeRepo{sessions: []*fakeSession{transient(), transient(), transient()}}
	svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

	result, err := svc.Load(context.Background(), testDataset())
	require.Error(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts, "1 initial + 2 retries")
	for _, s := range repo.sessions {
		assert.True(t, s.rolledBack)
	}
}

func TestLoad_ValidationFailureRollsBack(t *testing.T) {
	t.Run("row count mismatch", func(t *testing.T) {
		session := newFakeSession()
		session.countDelta[models.TableLocations] = -1
		repo := &fakeRepo{sessions: []*fakeSession{session, newFakeSession()}}
		svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

		result, err := svc.Load(context.Background(), testDataset())
		require.Error(t, err)
		assert.True(t, IsValidationFailure(err))
		assert.True(t, session.rolledBack)
		assert.False(t, session.committed)
		assert.False(t, result.Validation.RowCountsOK)
		assert.Equal(t, 1, result.Attempts, "validation failures are not retryable")
	})

	t.Run("dangling attribute references", func(t *testing.T) {
		session := newFakeSession()
		session.danglingIn[models.TableCityClasses] = 2
		repo := &fakeRepo{sessions: []*fakeSession{session}}
		svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

		result, err := svc.Load(context.Background(), testDataset())
		require.Error(t, err)
		assert.True(t, IsValidationFailure(err))
		assert.False(t, result.Validation.ReferencesOK)
		assert.True(t, session.rolledBack)
	})

	t.Run("empty sample read", func(t *testing.T) {
		empty := ""
		session := newFakeSession()
		session.sample = &empty
		repo := &fakeRepo{sessions: []*fakeSession{session}}
		svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

		result, err := svc.Load(context.Background(), testDataset())
		require.Error(t, err)
		assert.False(t, result.Validation.SampleReadOK)
		assert.True(t, session.rolledBack)
	})
}

func TestLoad_UnexpectedOrphansFailValidation(t *testing.T) {
	// The staged data carries an orphan the partitioner never reported.
	ds := testDataset()
	ds.Locations[2].ParentCode = nil

	session := newFakeSession()
	repo := &fakeRepo{sessions: []*fakeSession{session}}
	svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

	result, err := svc.Load(context.Background(), ds)
	require.Error(t, err)
	assert.True(t, IsValidationFailure(err))
	assert.False(t, result.Validation.OrphansOK)
}

func TestLoad_ToleratedOrphansPassValidation(t *testing.T) {
	ds := testDataset()
	ds.Locations[2].ParentCode = nil
	ds.Report.Orphans = []string{"1376030000"}

	session := newFakeSession()
	repo := &fakeRepo{sessions: []*fakeSession{session}}
	svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

	result, err := svc.Load(context.Background(), ds)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"1376030000"}, result.Orphans)
}

func TestLoad_CancellationAtStageBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	session := newFakeSession()
	session.onReplace = cancel // cancel lands mid-staging
	repo := &fakeRepo{sessions: []*fakeSession{session}}
	svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

	result, err := svc.Load(ctx, testDataset())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCancelled)
	assert.True(t, session.rolledBack)
	assert.False(t, session.committed)
	assert.False(t, result.Success)
}

func TestLoad_CommitFailureRollsBackAndRetries(t *testing.T) {
	flaky := newFakeSession()
	flaky.commitErr = &repositories.StoreError{
		Op: "commit load", Err: errors.New("connection timed out"), Retryable: true,
	}
	healthy := newFakeSession()
	repo := &fakeRepo{sessions: []*fakeSession{flaky, healthy}}
	svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

	result, err := svc.Load(context.Background(), testDataset())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.True(t, flaky.rolledBack)
	assert.True(t, healthy.committed)
}

func TestLoad_ResultCarriesReport(t *testing.T) {
	ds := testDataset()
	ds.Report.Duplicates = []string{"0100000000"}
	ds.Report.Warnings = []models.Warning{{Code: "1300000000", Column: "population", Message: "above ceiling"}}

	session := newFakeSession()
	repo := &fakeRepo{sessions: []*fakeSession{session}}
	svc := NewLoadService(repo, testLoadConfig(), zap.NewNop())

	result, err := svc.Load(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"0100000000"}, result.Duplicates)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "population", result.Warnings[0].Column)
	assert.NotEqual(t, result.BatchID.String(), "00000000-0000-0000-0000-000000000000")
}
