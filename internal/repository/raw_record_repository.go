package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coverlake/coverlake/internal/db"
	"github.com/coverlake/coverlake/internal/domain"
)

// rawRecordRepository implements RawRecordRepository. File commits run inside
// a single transaction together with the ingested-file mark, so a retried
// ingest never appends the same file twice.
type rawRecordRepository struct {
	conn *db.Connection
}

// NewRawRecordRepository creates a new raw record repository
func NewRawRecordRepository(conn *db.Connection) RawRecordRepository {
	return &rawRecordRepository{conn: conn}
}

func (r *rawRecordRepository) CommitFile(ctx context.Context, dataset, sourceFile string, records []domain.RawRecord, loadedAt time.Time) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, record := range records {
			fieldsJSON, err := json.Marshal(record.Fields)
			if err != nil {
				return fmt.Errorf("failed to encode raw fields: %w", err)
			}
			var reason any
			if record.RejectionReason != "" {
				reason = record.RejectionReason
			}
			batch.Queue(
				`INSERT INTO raw_records (id, dataset, source_file, row_number, fields, validation_status, rejection_reason, ingested_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				record.ID,
				record.Dataset,
				record.SourceFile,
				record.RowNumber,
				fieldsJSON,
				string(record.Status),
				reason,
				record.IngestedAt,
			)
		}
		batch.Queue(
			`INSERT INTO ingested_files (dataset, object_key, loaded_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (dataset, object_key) DO NOTHING`,
			dataset,
			sourceFile,
			loadedAt,
		)

		results := tx.SendBatch(ctx, batch)
		defer func() { _ = results.Close() }()

		for i := 0; i <= len(records); i++ {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("failed to commit raw file: %w", err)
			}
		}
		return nil
	})
}

func (r *rawRecordRepository) ListValidAfter(ctx context.Context, dataset string, afterSeq int64) ([]domain.RawRecord, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT id, seq, dataset, source_file, row_number, fields, validation_status, rejection_reason, ingested_at
		 FROM raw_records
		 WHERE dataset = $1
		   AND validation_status = $2
		   AND seq > $3
		 ORDER BY seq`,
		dataset,
		string(domain.RecordStatusValid),
		afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw records: %w", err)
	}
	defer rows.Close()

	var records []domain.RawRecord
	for rows.Next() {
		var (
			record     domain.RawRecord
			fieldsJSON []byte
			status     string
			reason     *string
		)
		if scanErr := rows.Scan(
			&record.ID,
			&record.Seq,
			&record.Dataset,
			&record.SourceFile,
			&record.RowNumber,
			&fieldsJSON,
			&status,
			&reason,
			&record.IngestedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan raw record: %w", scanErr)
		}
		if err := json.Unmarshal(fieldsJSON, &record.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode raw fields: %w", err)
		}
		record.Status = domain.RecordStatus(status)
		if reason != nil {
			record.RejectionReason = *reason
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate raw records: %w", rowsErr)
	}
	return records, nil
}

func (r *rawRecordRepository) MaxSeq(ctx context.Context, dataset string) (int64, error) {
	var maxSeq int64
	err := r.conn.Pool.QueryRow(
		ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM raw_records WHERE dataset = $1`,
		dataset,
	).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to query max raw sequence: %w", err)
	}
	return maxSeq, nil
}

func (r *rawRecordRepository) CountByStatus(ctx context.Context, dataset string) (int64, int64, error) {
	var valid, rejected int64
	err := r.conn.Pool.QueryRow(
		ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE validation_status = 'VALID'),
		   COUNT(*) FILTER (WHERE validation_status = 'REJECTED')
		 FROM raw_records WHERE dataset = $1`,
		dataset,
	).Scan(&valid, &rejected)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count raw records: %w", err)
	}
	return valid, rejected, nil
}
