// Package repositories implements target-store access for the atomic
// dataset load: streaming table replacement, post-write validation
// queries, and the commit/rollback boundary.
package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/psgc-data/psgc-engine/pkg/config"
	"github.com/psgc-data/psgc-engine/pkg/database"
	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/psgc"
)

// LoadSession is one staged load attempt against the target store. Tables
// written through it are invisible to concurrent readers until Commit;
// Rollback (or a failed Commit) leaves the pre-load state intact.
type LoadSession interface {
	// ReplaceTable stages the new contents of one table, returning the
	// number of rows written. Tables must be staged in dependency order.
	ReplaceTable(ctx context.Context, table models.Table) (int64, error)

	// TableCount counts the staged rows of a table.
	TableCount(ctx context.Context, name string) (int64, error)

	// OrphanCount counts staged non-region locations without a parent.
	OrphanCount(ctx context.Context) (int64, error)

	// DanglingCount counts staged attribute rows whose code has no
	// counterpart in the staged primary table.
	DanglingCount(ctx context.Context, table string) (int64, error)

	// SampleRead runs a representative read (first region by code) and
	// returns its name. An empty result fails validation.
	SampleRead(ctx context.Context) (string, error)

	// Commit makes the staged dataset live atomically.
	Commit(ctx context.Context) error

	// Rollback discards the staged dataset. Safe to call after Commit.
	Rollback(ctx context.Context) error
}

// DatasetRepository begins load sessions against the target store.
type DatasetRepository interface {
	Begin(ctx context.Context) (LoadSession, error)
}

// NewDatasetRepository selects the replacement strategy implementation.
func NewDatasetRepository(db *database.DB, strategy string) (DatasetRepository, error) {
	switch strategy {
	case config.StrategyTransactional:
		return &transactionalRepository{db: db}, nil
	case config.StrategyShadow:
		return &shadowRepository{db: db}, nil
	default:
		return nil, fmt.Errorf("unknown load strategy %q", strategy)
	}
}

// allTables lists the managed tables in dependency order.
var allTables = []string{
	models.TableLocations,
	models.TablePopulation,
	models.TableCityClasses,
	models.TableIncomeClasses,
	models.TableSettlementTags,
}

// ---------------------------------------------------------------------------
// Transactional strategy: DELETE + CopyFrom inside one transaction. MVCC
// keeps concurrent readers on their pre-load snapshot; no reader-excluding
// lock is taken at any point.
// ---------------------------------------------------------------------------

type transactionalRepository struct {
	db *database.DB
}

var _ DatasetRepository = (*transactionalRepository)(nil)

func (r *transactionalRepository) Begin(ctx context.Context) (LoadSession, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, classify("begin load transaction", err)
	}
	return &transactionalSession{tx: tx}, nil
}

type transactionalSession struct {
	tx   pgx.Tx
	done bool
}

func (s *transactionalSession) ReplaceTable(ctx context.Context, table models.Table) (int64, error) {
	// Deleting the primary table cascades to the attribute tables, so the
	// per-table delete is a no-op for dependents staged afterwards.
	ident := pgx.Identifier{table.Name}
	if _, err := s.tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", ident.Sanitize())); err != nil {
		return 0, classify(fmt.Sprintf("clear %s", table.Name), err)
	}

	n, err := s.tx.CopyFrom(ctx, ident, table.Columns, pgx.CopyFromRows(table.Rows))
	if err != nil {
		return 0, classify(fmt.Sprintf("copy into %s", table.Name), err)
	}
	return n, nil
}

func (s *transactionalSession) TableCount(ctx context.Context, name string) (int64, error) {
	return tableCount(ctx, s.tx, name, "")
}

func (s *transactionalSession) OrphanCount(ctx context.Context) (int64, error) {
	return orphanCount(ctx, s.tx, "")
}

func (s *transactionalSession) DanglingCount(ctx context.Context, table string) (int64, error) {
	return danglingCount(ctx, s.tx, table, "")
}

func (s *transactionalSession) SampleRead(ctx context.Context) (string, error) {
	return sampleRead(ctx, s.tx, "")
}

func (s *transactionalSession) Commit(ctx context.Context) error {
	s.done = true
	if err := s.tx.Commit(ctx); err != nil {
		return classify("commit load", err)
	}
	return nil
}

func (s *transactionalSession) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return classify("rollback load", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Shadow strategy: stage into *_shadow tables invisible to readers, then
// swap the whole set into place with renames in one short transaction.
// ---------------------------------------------------------------------------

const shadowSuffix = "_shadow"

type shadowRepository struct {
	db *database.DB
}

var _ DatasetRepository = (*shadowRepository)(nil)

func (r *shadowRepository) Begin(ctx context.Context) (LoadSession, error) {
	s := &shadowSession{db: r.db}
	if err := s.dropShadows(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

type shadowSession struct {
	db   *database.DB
	done bool
}

func (s *shadowSession) dropShadows(ctx context.Context) error {
	for i := len(allTables) - 1; i >= 0; i-- {
		name := pgx.Identifier{allTables[i] + shadowSuffix}
		if _, err := s.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", name.Sanitize())); err != nil {
			return classify(fmt.Sprintf("drop shadow of %s", allTables[i]), err)
		}
	}
	return nil
}

func (s *shadowSession) ReplaceTable(ctx context.Context, table models.Table) (int64, error) {
	live := pgx.Identifier{table.Name}
	shadow := pgx.Identifier{table.Name + shadowSuffix}

	// LIKE INCLUDING ALL carries primary keys, checks and indexes but not
	// foreign keys; those are re-attached at swap time.
	createSQL := fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", shadow.Sanitize(), live.Sanitize())
	if _, err := s.db.Exec(ctx, createSQL); err != nil {
		return 0, classify(fmt.Sprintf("create shadow of %s", table.Name), err)
	}

	n, err := s.db.CopyFrom(ctx, shadow, table.Columns, pgx.CopyFromRows(table.Rows))
	if err != nil {
		return 0, classify(fmt.Sprintf("copy into shadow of %s", table.Name), err)
	}
	return n, nil
}

func (s *shadowSession) TableCount(ctx context.Context, name string) (int64, error) {
	return tableCount(ctx, s.db, name, shadowSuffix)
}

func (s *shadowSession) OrphanCount(ctx context.Context) (int64, error) {
	return orphanCount(ctx, s.db, shadowSuffix)
}

func (s *shadowSession) DanglingCount(ctx context.Context, table string) (int64, error) {
	return danglingCount(ctx, s.db, table, shadowSuffix)
}

func (s *shadowSession) SampleRead(ctx context.Context) (string, error) {
	return sampleRead(ctx, s.db, shadowSuffix)
}

// Commit swaps the shadow set into place. The renames take an exclusive
// lock only for the duration of this short transaction; readers block
// momentarily rather than observing empty or partial tables.
func (s *shadowSession) Commit(ctx context.Context) error {
	s.done = true
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify("begin swap transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for i := len(allTables) - 1; i >= 0; i-- {
		name := pgx.Identifier{allTables[i]}
		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", name.Sanitize())); err != nil {
			return classify(fmt.Sprintf("retire %s", allTables[i]), err)
		}
	}
	for _, table := range allTables {
		shadow := pgx.Identifier{table + shadowSuffix}
		renameSQL := fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			shadow.Sanitize(), pgx.Identifier{table}.Sanitize())
		if _, err := tx.Exec(ctx, renameSQL); err != nil {
			return classify(fmt.Sprintf("swap in %s", table), err)
		}
	}
	for _, stmt := range shadowConstraints() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return classify("restore foreign keys", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit swap", err)
	}
	return nil
}

func (s *shadowSession) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	return s.dropShadows(ctx)
}

// shadowConstraints re-attaches the foreign keys that LIKE does not copy.
func shadowConstraints() []string {
	stmts := []string{
		`ALTER TABLE locations ADD CONSTRAINT locations_parent_psgc_fkey
			FOREIGN KEY (parent_psgc) REFERENCES locations (psgc_code) ON DELETE CASCADE`,
	}
	for _, table := range allTables[1:] {
		stmts = append(stmts, fmt.Sprintf(
			`ALTER TABLE %s ADD CONSTRAINT %s_psgc_code_fkey
			FOREIGN KEY (psgc_code) REFERENCES locations (psgc_code) ON DELETE CASCADE`,
			pgx.Identifier{table}.Sanitize(), table))
	}
	return stmts
}

// ---------------------------------------------------------------------------
// Validation queries shared by both strategies. querier covers pgx.Tx and
// the pool.
// ---------------------------------------------------------------------------

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func tableCount(ctx context.Context, q querier, name, suffix string) (int64, error) {
	var n int64
	sql := fmt.Sprintf("SELECT count(*) FROM %s", pgx.Identifier{name + suffix}.Sanitize())
	if err := q.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, classify(fmt.Sprintf("count %s", name), err)
	}
	return n, nil
}

func orphanCount(ctx context.Context, q querier, suffix string) (int64, error) {
	var n int64
	sql := fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE level_code <> $1 AND parent_psgc IS NULL",
		pgx.Identifier{models.TableLocations + suffix}.Sanitize())
	if err := q.QueryRow(ctx, sql, psgc.LevelRegion).Scan(&n); err != nil {
		return 0, classify("count orphans", err)
	}
	return n, nil
}

func danglingCount(ctx context.Context, q querier, table, suffix string) (int64, error) {
	var n int64
	sql := fmt.Sprintf(
		`SELECT count(*) FROM %s a
		LEFT JOIN %s l ON a.psgc_code = l.psgc_code
		WHERE l.psgc_code IS NULL`,
		pgx.Identifier{table + suffix}.Sanitize(),
		pgx.Identifier{models.TableLocations + suffix}.Sanitize())
	if err := q.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, classify(fmt.Sprintf("count dangling references in %s", table), err)
	}
	return n, nil
}

func sampleRead(ctx context.Context, q querier, suffix string) (string, error) {
	var name string
	sql := fmt.Sprintf(
		"SELECT name FROM %s WHERE level_code = $1 ORDER BY psgc_code LIMIT 1",
		pgx.Identifier{models.TableLocations + suffix}.Sanitize())
	err := q.QueryRow(ctx, sql, psgc.LevelRegion).Scan(&name)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", classify("sample read", err)
	}
	return name, nil
}
