// Package repositories implements the domain repositories over PostgreSQL.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/database/postgres"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

const pgUniqueViolation = "23505"

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const (
	insertRunSQL = `
		INSERT INTO matching_runs (
			run_id, started_at, finished_at, total_bom, matched_bom, matching_rate, summary, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertScopeSQL = `
		INSERT INTO matching_scopes (
			run_id, position, kind, scope_id, name, source_id, model_file,
			total_bom, total_parts, matched_bom, code_matched, spec_matched, ai_matched,
			matching_rate, skipped, mapping
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	selectReportSQL = `SELECT report FROM matching_runs WHERE run_id = $1`

	listRecentSQL = `
		SELECT run_id, finished_at, summary
		FROM matching_runs
		ORDER BY finished_at DESC
		LIMIT $1`
)

type postgresMappingRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewPostgresMappingRepo stores run reports in matching_runs and one row per
// scope in matching_scopes.
func NewPostgresMappingRepo(conn *postgres.Connection, log logging.Logger) matching.MappingRepository {
	return &postgresMappingRepo{
		conn: conn,
		log:  log,
	}
}

func (r *postgresMappingRepo) Save(ctx context.Context, report *matching.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode report")
	}
	summaryJSON, err := json.Marshal(report.Summary)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode summary")
	}

	err = r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		s := report.Summary
		if _, err := tx.ExecContext(ctx, insertRunSQL,
			report.RunID, report.StartedAt, report.FinishedAt,
			s.TotalBOM, s.MatchedBOM, s.MatchingRate, summaryJSON, reportJSON,
		); err != nil {
			return mapWriteError(err, "failed to insert matching run")
		}

		for i, sc := range report.Scopes() {
			mapping, err := json.Marshal(sc.Mapping)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode scope mapping")
			}
			if _, err := tx.ExecContext(ctx, insertScopeSQL,
				report.RunID, i, string(sc.Scope.Kind), sc.Scope.ID, sc.Scope.Name,
				sc.Scope.SourceID, sc.Scope.ModelFile,
				sc.TotalBOM, sc.TotalMeshParts, sc.MatchedBOMCount,
				sc.CodeMatchedCount, sc.SpecMatchedCount, sc.AIMatchedCount,
				sc.MatchingRate, sc.Skipped, mapping,
			); err != nil {
				return mapWriteError(err, "failed to insert matching scope")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug("matching run stored",
		logging.RunID(report.RunID.String()),
		logging.Int("scopes", report.Summary.Scopes))
	return nil
}

func (r *postgresMappingRepo) FindByRunID(ctx context.Context, runID uuid.UUID) (*matching.Report, error) {
	var raw []byte
	err := r.conn.DB().QueryRowContext(ctx, selectReportSQL, runID).Scan(&raw)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRunNotFound, "matching run not found").WithDetail(runID.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load matching run")
	}

	var report matching.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "stored report is corrupt")
	}
	return &report, nil
}

func (r *postgresMappingRepo) ListRecent(ctx context.Context, limit int) ([]matching.RunSummary, error) {
	rows, err := r.conn.DB().QueryContext(ctx, listRecentSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list matching runs")
	}
	defer rows.Close()

	out := make([]matching.RunSummary, 0, limit)
	for rows.Next() {
		rs, err := scanRunSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate matching runs")
	}
	return out, nil
}

func scanRunSummary(row scanner) (matching.RunSummary, error) {
	var (
		rs  matching.RunSummary
		raw []byte
	)
	if err := row.Scan(&rs.RunID, &rs.FinishedAt, &raw); err != nil {
		return rs, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan matching run")
	}
	if err := json.Unmarshal(raw, &rs.Summary); err != nil {
		return rs, errors.Wrap(err, errors.ErrCodeSerialization, "stored summary is corrupt")
	}
	return rs, nil
}

func mapWriteError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errors.Wrap(err, errors.ErrCodeConflict, "matching run already stored")
	}
	return errors.Wrap(err, errors.ErrCodeDatabaseError, msg)
}
