package rfq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrDuplicateSummary indicates a summary id was already stored.
var ErrDuplicateSummary = errors.New("rfq: summary already stored")

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadRFQ returns the fully hydrated RFQ aggregate. Line items, invited
// suppliers and quotes are fetched concurrently.
func (r *Repository) LoadRFQ(ctx context.Context, id int64) (RFQ, error) {
	var out RFQ
	err := r.pool.QueryRow(ctx, `SELECT r.id, r.number, r.currency, r.created_at, m.id, m.number, m.title
FROM rfqs r JOIN material_requests m ON m.id = r.material_request_id
WHERE r.id = $1`, id).Scan(&out.ID, &out.Number, &out.Currency, &out.CreatedAt,
		&out.MaterialRequest.ID, &out.MaterialRequest.Number, &out.MaterialRequest.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RFQ{}, ErrNotFound
		}
		return RFQ{}, err
	}

	var (
		lines     []LineItem
		suppliers []InvitedSupplier
		quotes    []Quote
		qlines    map[int64][]QuoteLine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		lines, err = r.lineItems(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		suppliers, err = r.suppliers(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		quotes, err = r.quotes(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		qlines, err = r.quoteLines(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return RFQ{}, fmt.Errorf("rfq: hydrate %d: %w", id, err)
	}
	for i := range quotes {
		quotes[i].Lines = qlines[quotes[i].ID]
	}
	out.LineItems = lines
	out.Suppliers = suppliers
	out.Quotes = quotes
	return out, nil
}

func (r *Repository) lineItems(ctx context.Context, rfqID int64) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.item_code, l.description, l.quantity, l.uom,
	COALESCE(l.location, ''), COALESCE(l.brand, ''), COALESCE(l.serial, ''), COALESCE(l.model_year, '')
FROM rfq_line_items rl JOIN mr_line_items l ON l.id = rl.mr_line_item_id
WHERE rl.rfq_id = $1 ORDER BY l.position, l.id`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var item LineItem
		var qty pgtype.Numeric
		if err := rows.Scan(&item.ID, &item.ItemCode, &item.Description, &qty, &item.UOM,
			&item.Location, &item.Brand, &item.Serial, &item.ModelYear); err != nil {
			return nil, err
		}
		item.Quantity = numericToDecimal(qty)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) suppliers(ctx context.Context, rfqID int64) ([]InvitedSupplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.code, s.name, COALESCE(s.email, ''), COALESCE(s.rating, 0), rs.status
FROM rfq_suppliers rs JOIN suppliers s ON s.id = rs.supplier_id
WHERE rs.rfq_id = $1 ORDER BY rs.invited_at, s.id`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InvitedSupplier
	for rows.Next() {
		var inv InvitedSupplier
		var status string
		if err := rows.Scan(&inv.Supplier.ID, &inv.Supplier.Code, &inv.Supplier.Name, &inv.Supplier.Email, &inv.Supplier.Rating, &status); err != nil {
			return nil, err
		}
		inv.SupplierID = inv.Supplier.ID
		inv.Status = SupplierStatus(status)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *Repository) quotes(ctx context.Context, rfqID int64) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, rfq_id, supplier_id, supplier_snapshot, status, submitted_at, valid_until,
	total_amount, currency, COALESCE(terms, ''), COALESCE(attachments, '[]'::jsonb)
FROM quotes WHERE rfq_id = $1 ORDER BY submitted_at, id`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quote
	for rows.Next() {
		var q Quote
		var snapshot, attachments []byte
		var status string
		var validUntil pgtype.Timestamptz
		var total pgtype.Numeric
		if err := rows.Scan(&q.ID, &q.RFQID, &q.SupplierID, &snapshot, &status, &q.SubmittedAt, &validUntil,
			&total, &q.Currency, &q.Terms, &attachments); err != nil {
			return nil, err
		}
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &q.Supplier); err != nil {
				return nil, fmt.Errorf("quote %d supplier snapshot: %w", q.ID, err)
			}
		}
		if err := json.Unmarshal(attachments, &q.Attachments); err != nil {
			return nil, fmt.Errorf("quote %d attachments: %w", q.ID, err)
		}
		q.Status = QuoteStatus(status)
		q.TotalAmount = numericToDecimal(total)
		if validUntil.Valid {
			q.ValidUntil = validUntil.Time
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *Repository) quoteLines(ctx context.Context, rfqID int64) (map[int64][]QuoteLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT ql.id, ql.quote_id, ql.mr_line_item_id, ql.unit_price, ql.quantity, ql.total_price,
	ql.lead_time_days, COALESCE(ql.remarks, ''), COALESCE(ql.attachments, '[]'::jsonb)
FROM quote_lines ql JOIN quotes q ON q.id = ql.quote_id
WHERE q.rfq_id = $1 ORDER BY ql.quote_id, ql.id`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]QuoteLine)
	for rows.Next() {
		var line QuoteLine
		var quoteID int64
		var unit, qty, total pgtype.Numeric
		var attachments []byte
		if err := rows.Scan(&line.ID, &quoteID, &line.MRLineItemID, &unit, &qty, &total,
			&line.LeadTimeDays, &line.Remarks, &attachments); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(attachments, &line.Attachments); err != nil {
			return nil, fmt.Errorf("quote line %d attachments: %w", line.ID, err)
		}
		line.UnitPrice = numericToDecimal(unit)
		line.Quantity = numericToDecimal(qty)
		line.TotalPrice = numericToDecimal(total)
		out[quoteID] = append(out[quoteID], line)
	}
	return out, rows.Err()
}

// SaveSummary stores a new summary. Summaries are insert-only.
func (r *Repository) SaveSummary(ctx context.Context, summary Summary, actorID int64) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO comparison_summaries (id, rfq_id, rfq_number, digest, total_savings, generated_at, created_by, payload)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8)`,
		summary.ID, summary.RFQID, summary.RFQNumber, summary.Digest, decimalToNumeric(summary.TotalSavings),
		summary.GeneratedAt, actorID, payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSummary
		}
		return err
	}
	return nil
}

// ListSummaries returns saved summaries for an RFQ, newest first.
func (r *Repository) ListSummaries(ctx context.Context, rfqID int64) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, `SELECT payload FROM comparison_summaries WHERE rfq_id = $1 ORDER BY generated_at DESC, id`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var s Summary
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSummary fetches one saved summary.
func (r *Repository) GetSummary(ctx context.Context, id uuid.UUID) (Summary, error) {
	var raw []byte
	if err := r.pool.QueryRow(ctx, `SELECT payload FROM comparison_summaries WHERE id = $1`, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, err
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return Summary{}, err
	}
	return s, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).Set(d.Coefficient()), Exp: d.Exponent(), Valid: true}
}
