package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
	"github.com/turtacn/keyip-combinator/pkg/types/common"
)

const (
	defaultVariantBatch = 1000
	// Postgres caps a statement at 65535 bind parameters.
	maxBindParams  = 65535
	variantColumns = 5

	defaultListLimit = 100
	maxListLimit     = 10000
)

// queryExecutor abstracts sql.DB and sql.Tx.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RunRepository stores runs in enumeration_runs and their variants in
// variants.
type RunRepository struct {
	conn      *Connection
	logger    logging.Logger
	batchSize int
	types     *pgtype.Map
}

var _ enumeration.RunRepository = (*RunRepository)(nil)

type RunRepositoryOption func(*RunRepository)

// WithVariantBatch sets how many variants go into one INSERT statement.
func WithVariantBatch(n int) RunRepositoryOption {
	return func(r *RunRepository) {
		if n > 0 && n*variantColumns <= maxBindParams {
			r.batchSize = n
		}
	}
}

func NewRunRepository(conn *Connection, log logging.Logger, opts ...RunRepositoryOption) *RunRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	r := &RunRepository{
		conn:      conn,
		logger:    log,
		batchSize: defaultVariantBatch,
		types:     pgtype.NewMap(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RunRepository) Name() string { return config.SinkPostgres }

// Write upserts the run and replaces its variants in one transaction, so a
// redelivered run leaves exactly one copy of each variant.
func (r *RunRepository) Write(ctx context.Context, run *enumeration.Run, variants []*enumeration.Variant) error {
	if err := run.Validate(); err != nil {
		return err
	}

	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.upsertRun(ctx, tx, run); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE run_id = $1`, run.ID.String()); err != nil {
			return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "failed to clear previous variants")
		}
		for start := 0; start < len(variants); start += r.batchSize {
			end := min(start+r.batchSize, len(variants))
			if err := r.insertVariants(ctx, tx, run.ID, variants[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeSinkWriteFailed) {
			return err
		}
		return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "failed to store run").
			WithDetail("run_id=" + run.ID.String())
	}

	r.logger.Debug("run stored",
		logging.String(logging.FieldRunID, run.ID.String()),
		logging.Int("variants", len(variants)))
	return nil
}

func (r *RunRepository) upsertRun(ctx context.Context, q queryExecutor, run *enumeration.Run) error {
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO enumeration_runs (
			id, skeleton, substituents, mode, n, carbon_only, unique_smiles,
			status, variant_count, error, created_at, finished_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			variant_count = EXCLUDED.variant_count,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`,
		run.ID.String(), run.Skeleton, run.Substituents, run.Mode, run.N, run.CarbonOnly, run.Unique,
		string(run.Status), run.VariantCount, run.Error, run.CreatedAt, finished,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "failed to insert run").
			WithDetail("run_id=" + run.ID.String())
	}
	return nil
}

func (r *RunRepository) insertVariants(ctx context.Context, q queryExecutor, runID common.ID, batch []*enumeration.Variant) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO variants (run_id, idx, smiles, sites, assignment) VALUES ")
	args := make([]interface{}, 0, len(batch)*variantColumns)
	for i, v := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		p := i * variantColumns
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d)", p+1, p+2, p+3, p+4, p+5)
		args = append(args, runID.String(), v.Index, v.SMILES, nonNil(v.Sites), nonNil(v.Assignment))
	}
	if _, err := q.ExecContext(ctx, sb.String(), args...); err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "failed to insert variants").
			WithDetail(fmt.Sprintf("run_id=%s first_index=%d", runID, batch[0].Index))
	}
	return nil
}

// GetRun loads one run.  A missing run is a NotFound error.
func (r *RunRepository) GetRun(ctx context.Context, id common.ID) (*enumeration.Run, error) {
	if err := id.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "invalid run id")
	}

	var (
		run      enumeration.Run
		rawID    string
		status   string
		finished sql.NullTime
	)
	err := r.conn.db.QueryRowContext(ctx, `
		SELECT id, skeleton, substituents, mode, n, carbon_only, unique_smiles,
			status, variant_count, error, created_at, finished_at
		FROM enumeration_runs WHERE id = $1`, id.String()).Scan(
		&rawID, &run.Skeleton, r.types.SQLScanner(&run.Substituents), &run.Mode, &run.N, &run.CarbonOnly, &run.Unique,
		&status, &run.VariantCount, &run.Error, &run.CreatedAt, &finished,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run not found").WithDetail("id=" + id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load run")
	}

	run.ID = common.ID(rawID)
	run.Status = enumeration.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// ListVariants pages through a run's variants in emission order.  A limit of
// zero or less uses the default page size.
func (r *RunRepository) ListVariants(ctx context.Context, id common.ID, limit, offset int) ([]*enumeration.Variant, error) {
	if err := id.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "invalid run id")
	}
	if offset < 0 {
		return nil, errors.InvalidParam("offset must not be negative")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.conn.db.QueryContext(ctx, `
		SELECT idx, smiles, sites, assignment
		FROM variants WHERE run_id = $1
		ORDER BY idx LIMIT $2 OFFSET $3`, id.String(), limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list variants")
	}
	defer rows.Close()

	var out []*enumeration.Variant
	for rows.Next() {
		v := &enumeration.Variant{RunID: id}
		if err := rows.Scan(&v.Index, &v.SMILES, r.types.SQLScanner(&v.Sites), r.types.SQLScanner(&v.Assignment)); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan variant")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate variants")
	}
	return out, nil
}

// nonNil keeps NOT NULL array columns from receiving NULL for an unmodified
// variant.
func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

//Personal.AI order the ending
