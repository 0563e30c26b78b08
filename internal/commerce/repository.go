package commerce

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/freightdesk/internal/platform/db"
	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// Repository persists documents with their lines and history as one unit.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Document, error)
	GetByToken(ctx context.Context, kind Kind, token string) (*Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
	ListOverdue(ctx context.Context, asOf time.Time, remindedBefore time.Time, limit int) ([]Document, error)
	InvoiceForQuote(ctx context.Context, quoteID int64) (*Document, error)
	NextReference(ctx context.Context, kind Kind, year int) (string, error)
	Insert(ctx context.Context, doc *Document) error
	// Update writes the header when the stored version still equals doc.Version
	// and bumps doc.Version. A stale version yields shared.ErrConcurrencyConflict.
	Update(ctx context.Context, doc *Document) error
	ReplaceLines(ctx context.Context, doc *Document) error
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	History(ctx context.Context, documentID int64) ([]HistoryEntry, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db   dbtx
	pool db.Pool
}

// NewRepository constructs a pgx backed repository.
func NewRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{db: pool, pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
// Serialization failures surface as shared.ErrConcurrencyConflict.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PostgresRepository{db: tx, pool: r.pool})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConcurrencyConflict, err)
	}
	return err
}

const documentColumns = `id, kind, reference, customer_kind, client_id, guest_name, guest_email, guest_phone,
	issue_date, valid_until, due_date, status, message, payment_terms, currency,
	discount_type, discount_base, discount_scope, discount_value,
	gross_ht, discount_total, total_ht, total_tva, total_ttc, amount_paid,
	public_token, quote_id, date_sent, date_viewed, date_accepted, date_rejected, date_paid, date_cancelled,
	rejection_reason, change_request, last_reminder_sent, reminder_count, version, created_by, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(
		&d.ID, &d.Kind, &d.Reference, &d.Customer.Kind, &d.Customer.ClientID,
		&d.Customer.Name, &d.Customer.Email, &d.Customer.Phone,
		&d.IssueDate, &d.ValidUntil, &d.DueDate, &d.Status, &d.Message, &d.PaymentTerms, &d.Currency,
		&d.Discount.Type, &d.Discount.Base, &d.Discount.Scope, &d.Discount.Value,
		&d.GrossHT, &d.DiscountTotal, &d.TotalHT, &d.TotalTVA, &d.TotalTTC, &d.AmountPaid,
		&d.PublicToken, &d.QuoteID, &d.DateSent, &d.DateViewed, &d.DateAccepted, &d.DateRejected, &d.DatePaid, &d.DateCancelled,
		&d.RejectionReason, &d.ChangeRequest, &d.LastReminderSent, &d.ReminderCount, &d.Version, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Currency = strings.TrimSpace(d.Currency)
	return &d, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*Document, error) {
	doc, err := scanDocument(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	lines, err := r.lines(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines
	doc.deriveLineAmounts()
	return doc, nil
}

// Get loads a document and its lines.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*Document, error) {
	return r.getOne(ctx, `SELECT `+documentColumns+` FROM commercial_documents WHERE id = $1`, id)
}

// GetByToken loads the document of kind holding token.
func (r *PostgresRepository) GetByToken(ctx context.Context, kind Kind, token string) (*Document, error) {
	return r.getOne(ctx, `SELECT `+documentColumns+` FROM commercial_documents WHERE kind = $1 AND public_token = $2`, kind, token)
}

// InvoiceForQuote returns the invoice converted from quoteID.
func (r *PostgresRepository) InvoiceForQuote(ctx context.Context, quoteID int64) (*Document, error) {
	return r.getOne(ctx, `SELECT `+documentColumns+` FROM commercial_documents WHERE kind = 'INVOICE' AND quote_id = $1`, quoteID)
}

// List returns a page of document headers matching filter.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	where := []string{"1=1"}
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.Kind != "" {
		add("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.ClientID != nil {
		add("client_id = ?", *filter.ClientID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add("(reference ILIKE ? OR guest_name ILIKE ?)", "%"+s+"%")
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM commercial_documents WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := shared.NormalizeLimit(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query := `SELECT ` + documentColumns + ` FROM commercial_documents WHERE ` + clause +
		` ORDER BY issue_date DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	docs, err := r.queryDocuments(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// ListOverdue returns open invoices past due whose last reminder predates remindedBefore.
func (r *PostgresRepository) ListOverdue(ctx context.Context, asOf time.Time, remindedBefore time.Time, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + documentColumns + ` FROM commercial_documents
		WHERE kind = 'INVOICE' AND status NOT IN ('PAID', 'CANCELLED', 'DRAFT')
		AND due_date < $1 AND (last_reminder_sent IS NULL OR last_reminder_sent < $2)
		ORDER BY due_date ASC, id ASC LIMIT $3`
	return r.queryDocuments(ctx, query, asOf, remindedBefore, limit)
}

func (r *PostgresRepository) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *PostgresRepository) lines(ctx context.Context, documentID int64) ([]Line, error) {
	rows, err := r.db.Query(ctx, `SELECT id, document_id, line_type, product_id, description, quantity, unit, unit_price, vat_rate, position
		FROM document_lines WHERE document_id = $1 ORDER BY position, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Type, &l.ProductID, &l.Description, &l.Quantity, &l.Unit, &l.UnitPrice, &l.VATRate, &l.Position); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// NextReference allocates the next human readable reference for kind and year.
func (r *PostgresRepository) NextReference(ctx context.Context, kind Kind, year int) (string, error) {
	var n int64
	err := r.db.QueryRow(ctx, `INSERT INTO document_sequences (kind, year, last_value) VALUES ($1, $2, 1)
		ON CONFLICT (kind, year) DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, kind, year).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("next reference: %w", err)
	}
	return FormatReference(kind, year, n), nil
}

// FormatReference renders DEV-2024-0001 style references.
func FormatReference(kind Kind, year int, n int64) string {
	return fmt.Sprintf("%s-%04d-%04d", kind.ReferencePrefix(), year, n)
}

// Insert stores a new document and its lines, assigning ids and version 1.
func (r *PostgresRepository) Insert(ctx context.Context, doc *Document) error {
	doc.Version = 1
	err := r.db.QueryRow(ctx, `INSERT INTO commercial_documents (
			kind, reference, customer_kind, client_id, guest_name, guest_email, guest_phone,
			issue_date, valid_until, due_date, status, message, payment_terms, currency,
			discount_type, discount_base, discount_scope, discount_value,
			gross_ht, discount_total, total_ht, total_tva, total_ttc, amount_paid,
			public_token, quote_id, version, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $29)
		RETURNING id`,
		doc.Kind, doc.Reference, doc.Customer.Kind, doc.Customer.ClientID, doc.Customer.Name, doc.Customer.Email, doc.Customer.Phone,
		doc.IssueDate, doc.ValidUntil, doc.DueDate, doc.Status, doc.Message, doc.PaymentTerms, doc.Currency,
		doc.Discount.Type, doc.Discount.Base, doc.Discount.Scope, doc.Discount.Value,
		doc.GrossHT, doc.DiscountTotal, doc.TotalHT, doc.TotalTVA, doc.TotalTTC, doc.AmountPaid,
		doc.PublicToken, doc.QuoteID, doc.Version, doc.CreatedBy, doc.CreatedAt,
	).Scan(&doc.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_documents_invoice_per_quote") {
			return fmt.Errorf("%w: quote already converted", shared.ErrInvalidState)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	doc.UpdatedAt = doc.CreatedAt
	return r.insertLines(ctx, doc)
}

// Update performs the optimistic compare-and-set write of the document header.
func (r *PostgresRepository) Update(ctx context.Context, doc *Document) error {
	tag, err := r.db.Exec(ctx, `UPDATE commercial_documents SET
			customer_kind = $3, client_id = $4, guest_name = $5, guest_email = $6, guest_phone = $7,
			issue_date = $8, valid_until = $9, due_date = $10, status = $11, message = $12, payment_terms = $13,
			discount_type = $14, discount_base = $15, discount_scope = $16, discount_value = $17,
			gross_ht = $18, discount_total = $19, total_ht = $20, total_tva = $21, total_ttc = $22, amount_paid = $23,
			date_sent = $24, date_viewed = $25, date_accepted = $26, date_rejected = $27, date_paid = $28, date_cancelled = $29,
			rejection_reason = $30, change_request = $31, last_reminder_sent = $32, reminder_count = $33,
			updated_at = $34, version = version + 1
		WHERE id = $1 AND version = $2`,
		doc.ID, doc.Version,
		doc.Customer.Kind, doc.Customer.ClientID, doc.Customer.Name, doc.Customer.Email, doc.Customer.Phone,
		doc.IssueDate, doc.ValidUntil, doc.DueDate, doc.Status, doc.Message, doc.PaymentTerms,
		doc.Discount.Type, doc.Discount.Base, doc.Discount.Scope, doc.Discount.Value,
		doc.GrossHT, doc.DiscountTotal, doc.TotalHT, doc.TotalTVA, doc.TotalTTC, doc.AmountPaid,
		doc.DateSent, doc.DateViewed, doc.DateAccepted, doc.DateRejected, doc.DatePaid, doc.DateCancelled,
		doc.RejectionReason, doc.ChangeRequest, doc.LastReminderSent, doc.ReminderCount,
		doc.UpdatedAt,
	)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return fmt.Errorf("%w: document %d: %v", shared.ErrConcurrencyConflict, doc.ID, err)
		}
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %d changed since version %d", shared.ErrConcurrencyConflict, doc.ID, doc.Version)
	}
	doc.Version++
	return nil
}

// ReplaceLines rewrites the line set of doc, assigning fresh line ids.
func (r *PostgresRepository) ReplaceLines(ctx context.Context, doc *Document) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}
	return r.insertLines(ctx, doc)
}

func (r *PostgresRepository) insertLines(ctx context.Context, doc *Document) error {
	for i := range doc.Lines {
		line := &doc.Lines[i]
		line.DocumentID = doc.ID
		err := r.db.QueryRow(ctx, `INSERT INTO document_lines
				(document_id, line_type, product_id, description, quantity, unit, unit_price, vat_rate, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			line.DocumentID, line.Type, line.ProductID, line.Description, line.Quantity, line.Unit, line.UnitPrice, line.VATRate, line.Position,
		).Scan(&line.ID)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", line.Position, err)
		}
	}
	return nil
}

// AppendHistory writes entry with the next sequence number of its document.
func (r *PostgresRepository) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	var actorID *int64
	if !entry.Actor.Guest && entry.Actor.ID > 0 {
		id := entry.Actor.ID
		actorID = &id
	}
	err := r.db.QueryRow(ctx, `INSERT INTO document_history
			(id, document_id, seq, at, action, from_status, to_status, actor_id, actor_name, actor_guest, details)
		VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM document_history WHERE document_id = $2),
			$3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq`,
		entry.ID, entry.DocumentID, entry.At, entry.Action, entry.FromStatus, entry.ToStatus,
		actorID, entry.Actor.String(), entry.Actor.Guest, entry.Details,
	).Scan(&entry.Seq)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_document_history_seq") {
			return fmt.Errorf("%w: history of document %d", shared.ErrConcurrencyConflict, entry.DocumentID)
		}
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns the audit trail of a document in sequence order.
func (r *PostgresRepository) History(ctx context.Context, documentID int64) ([]HistoryEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, document_id, seq, at, action, from_status, to_status, actor_id, actor_name, actor_guest, details
		FROM document_history WHERE document_id = $1 ORDER BY seq`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			h       HistoryEntry
			actorID *int64
		)
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.Seq, &h.At, &h.Action, &h.FromStatus, &h.ToStatus,
			&actorID, &h.Actor.Name, &h.Actor.Guest, &h.Details); err != nil {
			return nil, err
		}
		if actorID != nil {
			h.Actor.ID = *actorID
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
