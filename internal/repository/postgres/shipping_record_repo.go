package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"docai/internal/domain"
	"docai/internal/port"
)

const uniqueViolation = "23505"

// SQLSTATE classes for errors caused by the row contents.
const (
	classDataException       = "22"
	classIntegrityConstraint = "23"
)

type shippingRecordRepo struct {
	db *sqlx.DB
}

// NewShippingRecordRepo creates a new PostgreSQL-backed ShippingRecordRepository.
func NewShippingRecordRepo(db *sqlx.DB) port.ShippingRecordRepository {
	return &shippingRecordRepo{db: db}
}

// shippingRecordRow is the table layout. The structured fields are stored as JSONB.
type shippingRecordRow struct {
	TaskID        string    `db:"task_id"`
	BillOfLading  []byte    `db:"bill_of_lading"`
	ParsedContent string    `db:"parsed_content"`
	MetaInfo      []byte    `db:"meta_info"`
	CreatedAt     time.Time `db:"created_at"`
}

func toRow(rec *domain.ShippingRecord) (*shippingRecordRow, error) {
	bl, err := json.Marshal(rec.BillOfLading)
	if err != nil {
		return nil, fmt.Errorf("marshal bill_of_lading: %w", err)
	}
	meta, err := json.Marshal(rec.MetaInfo)
	if err != nil {
		return nil, fmt.Errorf("marshal meta_info: %w", err)
	}
	return &shippingRecordRow{
		TaskID:        rec.TaskID,
		BillOfLading:  bl,
		ParsedContent: rec.ParsedContent,
		MetaInfo:      meta,
		CreatedAt:     rec.CreatedAt,
	}, nil
}

func (row *shippingRecordRow) toRecord() (*domain.ShippingRecord, error) {
	rec := &domain.ShippingRecord{
		TaskID:        row.TaskID,
		ParsedContent: row.ParsedContent,
		CreatedAt:     row.CreatedAt,
	}
	if err := json.Unmarshal(row.BillOfLading, &rec.BillOfLading); err != nil {
		return nil, fmt.Errorf("unmarshal bill_of_lading: %w", err)
	}
	if err := json.Unmarshal(row.MetaInfo, &rec.MetaInfo); err != nil {
		return nil, fmt.Errorf("unmarshal meta_info: %w", err)
	}
	return rec, nil
}

func (r *shippingRecordRepo) FindByTaskID(ctx context.Context, taskID string) (*domain.ShippingRecord, error) {
	var row shippingRecordRow
	err := r.db.GetContext(ctx, &row,
		`SELECT task_id, bill_of_lading, parsed_content, meta_info, created_at
		 FROM shipping_records WHERE task_id = $1`, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, &domain.StoreUnavailableError{Op: "shippingRecordRepo.FindByTaskID", Err: err}
	}
	rec, err := row.toRecord()
	if err != nil {
		return nil, fmt.Errorf("shippingRecordRepo.FindByTaskID: %w", err)
	}
	return rec, nil
}

func (r *shippingRecordRepo) Insert(ctx context.Context, rec *domain.ShippingRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row, err := toRow(rec)
	if err != nil {
		return fmt.Errorf("shippingRecordRepo.Insert: %w", err)
	}

	query := `INSERT INTO shipping_records (
		task_id, bill_of_lading, parsed_content, meta_info, created_at
	) VALUES (
		:task_id, :bill_of_lading, :parsed_content, :meta_info, :created_at
	)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return classifyWriteError("shippingRecordRepo.Insert", err)
	}
	return nil
}

func (r *shippingRecordRepo) List(ctx context.Context, offset, limit int) ([]domain.ShippingRecord, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM shipping_records"); err != nil {
		return nil, 0, &domain.StoreUnavailableError{Op: "shippingRecordRepo.List", Err: err}
	}

	var rows []shippingRecordRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT task_id, bill_of_lading, parsed_content, meta_info, created_at
		 FROM shipping_records ORDER BY created_at DESC, task_id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, &domain.StoreUnavailableError{Op: "shippingRecordRepo.List", Err: err}
	}

	records, err := toRecords(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("shippingRecordRepo.List: %w", err)
	}
	return records, total, nil
}

// ListAfter seeks on (created_at, task_id) so rows inserted while a caller
// is paging never shift later pages.
func (r *shippingRecordRepo) ListAfter(ctx context.Context, after *port.RecordCursor, limit int) ([]domain.ShippingRecord, error) {
	query, args := keysetQuery(after, limit)
	var rows []shippingRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &domain.StoreUnavailableError{Op: "shippingRecordRepo.ListAfter", Err: err}
	}
	records, err := toRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("shippingRecordRepo.ListAfter: %w", err)
	}
	return records, nil
}

func keysetQuery(after *port.RecordCursor, limit int) (string, []any) {
	const columns = `SELECT task_id, bill_of_lading, parsed_content, meta_info, created_at FROM shipping_records`
	const order = ` ORDER BY created_at DESC, task_id DESC`
	if after == nil {
		return columns + order + ` LIMIT $1`, []any{limit}
	}
	return columns + ` WHERE (created_at, task_id) < ($1, $2)` + order + ` LIMIT $3`,
		[]any{after.CreatedAt, after.TaskID, limit}
}

func toRecords(rows []shippingRecordRow) ([]domain.ShippingRecord, error) {
	records := make([]domain.ShippingRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (r *shippingRecordRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return &domain.StoreUnavailableError{Op: "shippingRecordRepo.Ping", Err: err}
	}
	return nil
}

// classifyWriteError separates duplicate keys and rejected data from
// connectivity failures.
func classifyWriteError(op string, err error) error {
	if isUniqueViolation(err) {
		return domain.ErrUniquenessViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 {
		switch pgErr.Code[:2] {
		case classDataException, classIntegrityConstraint:
			return &domain.RecordRejectedError{Op: op, Err: err}
		}
	}
	return &domain.StoreUnavailableError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return strings.Contains(err.Error(), "duplicate key")
}
