package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/psgc-data/psgc-engine/pkg/apperrors"
	"github.com/psgc-data/psgc-engine/pkg/config"
	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/repositories"
	"github.com/psgc-data/psgc-engine/pkg/retry"
)

// LoadService persists a partitioned dataset into the target store as an
// all-or-nothing operation. Each attempt walks the state machine
// Idle → Staging → Validating → Committing, detouring through RollingBack
// on any failure; the pre-load state survives every failure path.
type LoadService interface {
	Load(ctx context.Context, ds *models.Dataset) (*models.LoadResult, error)
}

type loadService struct {
	repo   repositories.DatasetRepository
	cfg    config.LoadConfig
	logger *zap.Logger
}

// NewLoadService creates a LoadService.
func NewLoadService(repo repositories.DatasetRepository, cfg config.LoadConfig, logger *zap.Logger) LoadService {
	return &loadService{
		repo:   repo,
		cfg:    cfg,
		logger: logger.Named("load-service"),
	}
}

var _ LoadService = (*loadService)(nil)

// Load runs the atomic load with bounded retries. Transient store failures
// (connectivity, failover) retry the whole attempt with backoff; integrity
// and validation failures abort immediately. The returned result is always
// populated, success or not.
func (s *loadService) Load(ctx context.Context, ds *models.Dataset) (*models.LoadResult, error) {
	result := &models.LoadResult{
		BatchID:    uuid.New(),
		StartedAt:  time.Now(),
		FinalState: models.StateIdle,
		Duplicates: ds.Report.Duplicates,
		Orphans:    ds.Report.Orphans,
		Warnings:   ds.Report.Warnings,
	}

	retryCfg := &retry.Config{
		MaxRetries:   s.cfg.MaxRetries,
		InitialDelay: s.cfg.RetryInitialDelay,
		MaxDelay:     s.cfg.RetryMaxDelay,
		Multiplier:   s.cfg.RetryBackoffFactor,
		JitterFactor: 0.1,
	}

	err := retry.DoIfRetryable(ctx, retryCfg, func() error {
		result.Attempts++
		return s.attempt(ctx, ds, result)
	})

	result.FinishedAt = time.Now()
	if err != nil {
		result.Success = false
		result.Err = err.Error()
		return result, err
	}
	result.Success = true
	return result, nil
}

// attempt is one pass through the state machine. Every error return has
// already rolled the session back.
func (s *loadService) attempt(ctx context.Context, ds *models.Dataset, result *models.LoadResult) error {
	result.TableRows = make(map[string]int64)
	result.Validation = models.ValidationOutcome{}

	session, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		s.logger.Debug("load attempt failed", zap.String("state", string(models.StateRollingBack)), zap.Error(err))
		if rbErr := session.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		result.FinalState = models.StateIdle
		return err
	}

	s.logger.Debug("staging dataset",
		zap.String("state", string(models.StateStaging)),
		zap.String("batch_id", result.BatchID.String()))
	for _, table := range ds.Tables() {
		n, err := session.ReplaceTable(ctx, table)
		if err != nil {
			return fail(err)
		}
		result.TableRows[table.Name] = n
	}

	// Stage boundary: cooperative cancellation before validation.
	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("%w: %w", apperrors.ErrCancelled, err))
	}

	s.logger.Debug("validating staged dataset", zap.String("state", string(models.StateValidating)))
	outcome, err := s.validate(ctx, session, ds)
	result.Validation = *outcome
	if err != nil {
		return fail(err)
	}
	if !outcome.OK() {
		return fail(&apperrors.BatchError{Kind: apperrors.ErrValidationFailed, Details: outcome.Failures})
	}

	// Stage boundary: last cancellation point before commit.
	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("%w: %w", apperrors.ErrCancelled, err))
	}

	s.logger.Debug("committing", zap.String("state", string(models.StateCommitting)))
	if err := session.Commit(ctx); err != nil {
		return fail(err)
	}
	result.FinalState = models.StateIdle
	return nil
}

// validate runs the post-write checks against the staged (not yet visible)
// dataset. Store errors during validation are returned as-is; check
// failures land in the outcome.
func (s *loadService) validate(ctx context.Context, session repositories.LoadSession, ds *models.Dataset) (*models.ValidationOutcome, error) {
	outcome := &models.ValidationOutcome{}

	outcome.RowCountsOK = true
	for _, table := range ds.Tables() {
		n, err := session.TableCount(ctx, table.Name)
		if err != nil {
			return outcome, err
		}
		if n != int64(len(table.Rows)) {
			outcome.RowCountsOK = false
			outcome.Failures = append(outcome.Failures,
				fmt.Sprintf("%s: staged %d rows, expected %d", table.Name, n, len(table.Rows)))
		}
	}

	orphans, err := session.OrphanCount(ctx)
	if err != nil {
		return outcome, err
	}
	// Tolerated orphans were accepted upstream; anything beyond them means
	// the staged data does not match the partitioned dataset.
	outcome.OrphansOK = orphans == int64(len(ds.Report.Orphans))
	if !outcome.OrphansOK {
		outcome.Failures = append(outcome.Failures,
			fmt.Sprintf("staged %d orphans, expected %d", orphans, len(ds.Report.Orphans)))
	}

	outcome.ReferencesOK = true
	for _, table := range ds.Tables()[1:] {
		dangling, err := session.DanglingCount(ctx, table.Name)
		if err != nil {
			return outcome, err
		}
		if dangling > 0 {
			outcome.ReferencesOK = false
			outcome.Failures = append(outcome.Failures,
				fmt.Sprintf("%s: %d rows reference a missing location", table.Name, dangling))
		}
	}

	sample, err := session.SampleRead(ctx)
	if err != nil {
		return outcome, err
	}
	outcome.SampleReadValue = sample
	outcome.SampleReadOK = sample != ""
	if !outcome.SampleReadOK {
		outcome.Failures = append(outcome.Failures, "sample read returned no rows")
	}

	return outcome, nil
}

// IsValidationFailure reports whether err is a post-write validation
// failure (as opposed to a store or cancellation error).
func IsValidationFailure(err error) bool {
	return errors.Is(err, apperrors.ErrValidationFailed)
}
