package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type receiptRepoPG struct{ conn queryable }

func NewReceiptRepoPG(pool *pgxpool.Pool) ReceiptRepository {
	return &receiptRepoPG{conn: pool}
}

const receiptCols = `id, form_id, patient_name, status, failed_phase, pdf_url,
	pages, attachments, error, created_at`

func (r *receiptRepoPG) scanRow(row pgx.Row) (*Receipt, error) {
	var rec Receipt
	err := row.Scan(&rec.ID, &rec.FormID, &rec.PatientName, &rec.Status, &rec.FailedPhase, &rec.PDFURL,
		&rec.Pages, &rec.Attachments, &rec.Error, &rec.CreatedAt)
	return &rec, err
}

func (r *receiptRepoPG) Create(ctx context.Context, rec *Receipt) error {
	rec.ID = uuid.New()
	_, err := r.conn.Exec(ctx, `
		INSERT INTO referral_receipts (id, form_id, patient_name, status, failed_phase, pdf_url,
			pages, attachments, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.FormID, rec.PatientName, rec.Status, rec.FailedPhase, rec.PDFURL,
		rec.Pages, rec.Attachments, rec.Error, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (r *receiptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	rec, err := r.scanRow(r.conn.QueryRow(ctx, `SELECT `+receiptCols+` FROM referral_receipts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	return rec, err
}

func (r *receiptRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Receipt, int, error) {
	where := ` WHERE ($1::text = '' OR status = $1::text)`

	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM referral_receipts`+where, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn.Query(ctx,
		`SELECT `+receiptCols+` FROM referral_receipts`+where+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Receipt{}
	for rows.Next() {
		rec, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
