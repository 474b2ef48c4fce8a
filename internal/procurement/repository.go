package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-sourcing/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence. Money columns are
// NUMERIC and scan straight into decimal.Decimal.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreatePR(ctx context.Context, pr PurchaseRequest) (int64, error)
	InsertPRLine(ctx context.Context, line Line) error
	UpdatePRStatus(ctx context.Context, id int64, status PRStatus) error
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line Line) error
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	SetPOApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a repeatable-read transaction; serialization failures rerun fn.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const prColumns = `id, number, summary_id, rfq_id, supplier_id, supplier_name, request_by, status, currency, total, note, created_at`

const poColumns = `id, number, summary_id, rfq_id, COALESCE(pr_id, 0), supplier_id, supplier_name, status, currency, total,
expected_date, note, created_by, COALESCE(approved_by, 0), approved_at, created_at`

const lineColumns = `id, document_id, line_item_id, quote_id, item_code, description, qty, uom, unit_price, total_price, lead_time_days`

// GetPR returns purchase request and lines.
func (r *Repository) GetPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	pr, err := scanPR(r.pool.QueryRow(ctx, `SELECT `+prColumns+` FROM purchase_requests WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, ErrNotFound
		}
		return PurchaseRequest{}, err
	}
	pr.Lines, err = listLines(ctx, r.pool, "pr_lines", id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	return pr, nil
}

// GetPO returns purchase order and lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Lines, err = listLines(ctx, r.pool, "po_lines", id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ListPRsBySummary returns the PRs generated from a summary, in creation order.
func (r *Repository) ListPRsBySummary(ctx context.Context, summaryID uuid.UUID) ([]PurchaseRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+prColumns+` FROM purchase_requests WHERE summary_id=$1 ORDER BY id`, summaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = listLines(ctx, r.pool, "pr_lines", out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListPOsBySummary returns the POs generated from a summary, in creation order.
func (r *Repository) ListPOsBySummary(ctx context.Context, summaryID uuid.UUID) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE summary_id=$1 ORDER BY id`, summaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = listLines(ctx, r.pool, "po_lines", out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *txRepo) CreatePR(ctx context.Context, pr PurchaseRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_requests (number, summary_id, rfq_id, supplier_id, supplier_name, request_by, status, currency, total, note, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), $7, $8, $9, $10, $11) RETURNING id`,
		pr.Number, pr.SummaryID, pr.RFQID, pr.SupplierID, pr.SupplierName, pr.RequestBy, string(pr.Status), pr.Currency, pr.Total, pr.Note, pr.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertPRLine(ctx context.Context, line Line) error {
	return insertLine(ctx, t.tx, "pr_lines", line)
}

func (t *txRepo) UpdatePRStatus(ctx context.Context, id int64, status PRStatus) error {
	return execOne(ctx, t.tx, `UPDATE purchase_requests SET status=$2 WHERE id=$1`, id, string(status))
}

func (t *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, summary_id, rfq_id, pr_id, supplier_id, supplier_name, status, currency, total, expected_date, note, created_by, created_at)
VALUES ($1, $2, $3, NULLIF($4, 0), $5, $6, $7, $8, $9, $10, $11, NULLIF($12, 0), $13) RETURNING id`,
		po.Number, po.SummaryID, po.RFQID, po.PRID, po.SupplierID, po.SupplierName, string(po.Status), po.Currency, po.Total,
		po.ExpectedDate, po.Note, po.CreatedBy, po.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertPOLine(ctx context.Context, line Line) error {
	return insertLine(ctx, t.tx, "po_lines", line)
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	return execOne(ctx, t.tx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, id, string(status))
}

func (t *txRepo) SetPOApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error {
	return execOne(ctx, t.tx, `UPDATE purchase_orders SET approved_by=$2, approved_at=$3 WHERE id=$1`, id, approvedBy, approvedAt)
}

func execOne(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// table names are package constants, never user input.
func insertLine(ctx context.Context, tx pgx.Tx, table string, line Line) error {
	_, err := tx.Exec(ctx, `INSERT INTO `+table+` (document_id, line_item_id, quote_id, item_code, description, qty, uom, unit_price, total_price, lead_time_days)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		line.DocumentID, line.LineItemID, line.QuoteID, line.ItemCode, line.Description, line.Qty, line.UOM, line.UnitPrice, line.TotalPrice, line.LeadTimeDays)
	return err
}

func listLines(ctx context.Context, q querier, table string, documentID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM `+table+` WHERE document_id=$1 ORDER BY id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.LineItemID, &l.QuoteID, &l.ItemCode, &l.Description, &l.Qty, &l.UOM, &l.UnitPrice, &l.TotalPrice, &l.LeadTimeDays); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanPR(row pgx.Row) (PurchaseRequest, error) {
	var pr PurchaseRequest
	var requestBy *int64
	var status string
	err := row.Scan(&pr.ID, &pr.Number, &pr.SummaryID, &pr.RFQID, &pr.SupplierID, &pr.SupplierName, &requestBy, &status, &pr.Currency, &pr.Total, &pr.Note, &pr.CreatedAt)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if requestBy != nil {
		pr.RequestBy = *requestBy
	}
	pr.Status = PRStatus(status)
	return pr, nil
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	var createdBy *int64
	err := row.Scan(&po.ID, &po.Number, &po.SummaryID, &po.RFQID, &po.PRID, &po.SupplierID, &po.SupplierName, &status, &po.Currency, &po.Total,
		&po.ExpectedDate, &po.Note, &createdBy, &po.ApprovedBy, &po.ApprovedAt, &po.CreatedAt)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if createdBy != nil {
		po.CreatedBy = *createdBy
	}
	po.Status = POStatus(status)
	return po, nil
}
