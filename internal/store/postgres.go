package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/buildflow/invoicepipe/internal/db"
	"github.com/buildflow/invoicepipe/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id                TEXT PRIMARY KEY,
	builder_id        TEXT NOT NULL,
	filename          TEXT NOT NULL,
	file_path         TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'uploaded',
	processing_method TEXT,
	uploaded_at       TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_results (
	id                 TEXT PRIMARY KEY,
	seq                BIGSERIAL,
	invoice_id         TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	method             TEXT NOT NULL,
	status             TEXT NOT NULL,
	vendor_name        TEXT,
	invoice_number     TEXT,
	invoice_date       TEXT,
	total_amount       NUMERIC(12,2),
	confidence         DOUBLE PRECISION NOT NULL,
	processing_time_ms BIGINT NOT NULL,
	raw_output         JSONB,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS line_items (
	id             TEXT PRIMARY KEY,
	seq            BIGSERIAL,
	invoice_id     TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	result_id      TEXT REFERENCES extraction_results(id) ON DELETE CASCADE,
	description    TEXT NOT NULL,
	quantity       NUMERIC(12,2),
	unit_price     NUMERIC(12,2),
	amount         NUMERIC(12,2) NOT NULL,
	suggested_code TEXT,
	confidence     DOUBLE PRECISION,
	confirmed_code TEXT,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS subcontractors (
	id           TEXT PRIMARY KEY,
	seq          BIGSERIAL,
	builder_id   TEXT NOT NULL,
	name         TEXT NOT NULL,
	contact_info JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS vendor_matches (
	id               TEXT PRIMARY KEY,
	seq              BIGSERIAL,
	invoice_id       TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	subcontractor_id TEXT,
	match_score      INTEGER NOT NULL,
	confirmed_at     TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS cost_codes (
	id          TEXT PRIMARY KEY,
	builder_id  TEXT NOT NULL,
	code        TEXT NOT NULL,
	label       TEXT NOT NULL,
	description TEXT,
	trade       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (builder_id, code)
);

CREATE TABLE IF NOT EXISTS correction_history (
	id              TEXT PRIMARY KEY,
	seq             BIGSERIAL,
	invoice_id      TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	field_name      TEXT NOT NULL,
	original_value  TEXT,
	corrected_value TEXT,
	corrected_by    TEXT,
	correction_type TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_metrics (
	id                 TEXT PRIMARY KEY,
	seq                BIGSERIAL,
	invoice_id         TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	method             TEXT NOT NULL,
	processing_time_ms BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_builder ON invoices(builder_id);
CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
CREATE INDEX IF NOT EXISTS idx_results_invoice ON extraction_results(invoice_id);
CREATE INDEX IF NOT EXISTS idx_line_items_result ON line_items(result_id);
CREATE INDEX IF NOT EXISTS idx_subcontractors_builder ON subcontractors(builder_id);
CREATE INDEX IF NOT EXISTS idx_vendor_matches_invoice ON vendor_matches(invoice_id);
CREATE INDEX IF NOT EXISTS idx_cost_codes_builder ON cost_codes(builder_id);
CREATE INDEX IF NOT EXISTS idx_corrections_invoice ON correction_history(invoice_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Invoices ---

func (s *PostgresStore) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if inv.UploadedAt.IsZero() {
		inv.UploadedAt = now
	}
	if inv.Status == "" {
		inv.Status = model.StatusUploaded
	}
	inv.CreatedAt = now
	inv.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO invoices (id, builder_id, filename, file_path, status, processing_method, uploaded_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.BuilderID, inv.Filename, inv.FilePath, string(inv.Status),
		textOrNil(string(inv.ProcessingMethod)), inv.UploadedAt, now, now,
	)
	return eris.Wrap(err, "postgres: insert invoice")
}

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, builder_id, filename, file_path, status, processing_method, uploaded_at, created_at, updated_at
		 FROM invoices WHERE id = $1`, id)

	var inv model.Invoice
	var status string
	var method *string
	err := row.Scan(&inv.ID, &inv.BuilderID, &inv.Filename, &inv.FilePath, &status,
		&method, &inv.UploadedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: invoice %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan invoice")
	}
	inv.Status = model.InvoiceStatus(status)
	if method != nil {
		inv.ProcessingMethod = model.ProcessingMethod(*method)
	}
	return &inv, nil
}

func (s *PostgresStore) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, error) {
	query := `SELECT id, builder_id, filename, file_path, status, processing_method, uploaded_at, created_at, updated_at
	          FROM invoices WHERE ($1 = '' OR builder_id = $1) AND ($2 = '' OR status = $2)
	          ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, filter.BuilderID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list invoices")
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		var inv model.Invoice
		var status string
		var method *string
		if err := rows.Scan(&inv.ID, &inv.BuilderID, &inv.Filename, &inv.FilePath, &status,
			&method, &inv.UploadedAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan invoice row")
		}
		inv.Status = model.InvoiceStatus(status)
		if method != nil {
			inv.ProcessingMethod = model.ProcessingMethod(*method)
		}
		invoices = append(invoices, inv)
	}
	return invoices, eris.Wrap(rows.Err(), "postgres: list invoices iterate")
}

func (s *PostgresStore) UpdateInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update invoice status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "invoice %s", id)
	}
	return nil
}

func (s *PostgresStore) SetProcessingMethod(ctx context.Context, id string, method model.ProcessingMethod) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET processing_method = $1, updated_at = $2 WHERE id = $3`,
		string(method), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set processing method %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "invoice %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteInvoice(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete invoice %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "invoice %s", id)
	}
	return nil
}

// --- Extraction results ---

func (s *PostgresStore) CreateExtractionResult(ctx context.Context, res *model.ExtractionResult) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	var rawJSON []byte
	if res.RawOutput != nil {
		var err error
		rawJSON, err = json.Marshal(res.RawOutput)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal raw output")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO extraction_results (id, invoice_id, method, status, vendor_name, invoice_number, invoice_date, total_amount, confidence, processing_time_ms, raw_output, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		res.ID, res.InvoiceID, string(res.Method), string(res.Status),
		textOrNil(res.Fields.VendorName), textOrNil(res.Fields.InvoiceNumber),
		textOrNil(res.Fields.InvoiceDate), res.Fields.TotalAmount,
		res.Confidence, res.ProcessingTimeMS, rawJSON, res.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert extraction result")
	}

	for i := range res.LineItems {
		item := &res.LineItems[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.InvoiceID = res.InvoiceID
		item.ResultID = res.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = res.CreatedAt
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO line_items (id, invoice_id, result_id, description, quantity, unit_price, amount, suggested_code, confidence, confirmed_code, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			item.ID, item.InvoiceID, item.ResultID, item.Description,
			item.Quantity, item.UnitPrice, item.Amount,
			textOrNil(item.SuggestedCode), item.Confidence, textOrNil(item.ConfirmedCode), item.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert line item")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit extraction result")
}

const pgResultColumns = `id, invoice_id, method, status, vendor_name, invoice_number, invoice_date, total_amount, confidence, processing_time_ms, raw_output, created_at`

func (s *PostgresStore) LatestResultByMethod(ctx context.Context, invoiceID string, method model.ProcessingMethod) (*model.ExtractionResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgResultColumns+` FROM extraction_results
		 WHERE invoice_id = $1 AND method = $2
		 ORDER BY created_at DESC, seq DESC LIMIT 1`,
		invoiceID, string(method),
	)
	return s.scanPGResult(ctx, row)
}

func (s *PostgresStore) BestResult(ctx context.Context, invoiceID string) (*model.ExtractionResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgResultColumns+` FROM extraction_results
		 WHERE invoice_id = $1
		 ORDER BY confidence DESC, created_at DESC, seq DESC LIMIT 1`,
		invoiceID,
	)
	return s.scanPGResult(ctx, row)
}

func (s *PostgresStore) UpdateResultFields(ctx context.Context, resultID string, fields model.ExtractedFields) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_results SET vendor_name = $1, invoice_number = $2, invoice_date = $3, total_amount = $4 WHERE id = $5`,
		textOrNil(fields.VendorName), textOrNil(fields.InvoiceNumber),
		textOrNil(fields.InvoiceDate), fields.TotalAmount, resultID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update result fields %s", resultID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "extraction result %s", resultID)
	}
	return nil
}

func (s *PostgresStore) scanPGResult(ctx context.Context, row pgx.Row) (*model.ExtractionResult, error) {
	var r model.ExtractionResult
	var method, status string
	var vendor, number, date *string
	var total decimal.NullDecimal
	var raw []byte

	err := row.Scan(&r.ID, &r.InvoiceID, &method, &status, &vendor, &number, &date, &total,
		&r.Confidence, &r.ProcessingTimeMS, &raw, &r.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan extraction result")
	}

	r.Method = model.ProcessingMethod(method)
	r.Status = model.ExtractionStatus(status)
	r.Fields.VendorName = deref(vendor)
	r.Fields.InvoiceNumber = deref(number)
	r.Fields.InvoiceDate = deref(date)
	if total.Valid {
		r.Fields.TotalAmount = &total.Decimal
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.RawOutput); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal raw output")
		}
	}

	items, err := s.ListLineItemsByResult(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.LineItems = items
	return &r, nil
}

// --- Line items ---

func (s *PostgresStore) ListLineItemsByResult(ctx context.Context, resultID string) ([]model.LineItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, invoice_id, result_id, description, quantity, unit_price, amount, suggested_code, confidence, confirmed_code, created_at
		 FROM line_items WHERE result_id = $1 ORDER BY seq`,
		resultID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list line items")
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		var item model.LineItem
		var resID, suggested, confirmed *string
		var qty, price decimal.NullDecimal
		if err := rows.Scan(&item.ID, &item.InvoiceID, &resID, &item.Description,
			&qty, &price, &item.Amount, &suggested, &item.Confidence, &confirmed, &item.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan line item")
		}
		item.ResultID = deref(resID)
		item.SuggestedCode = deref(suggested)
		item.ConfirmedCode = deref(confirmed)
		if qty.Valid {
			item.Quantity = &qty.Decimal
		}
		if price.Valid {
			item.UnitPrice = &price.Decimal
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list line items iterate")
}

func (s *PostgresStore) UpdateLineItemSuggestion(ctx context.Context, lineItemID, code string, confidence float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE line_items SET suggested_code = $1, confidence = $2 WHERE id = $3`,
		code, confidence, lineItemID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update line item suggestion %s", lineItemID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "line item %s", lineItemID)
	}
	return nil
}

func (s *PostgresStore) ConfirmLineItemCode(ctx context.Context, lineItemID, code string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE line_items SET confirmed_code = $1 WHERE id = $2`,
		code, lineItemID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: confirm line item code %s", lineItemID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "line item %s", lineItemID)
	}
	return nil
}

// --- Vendor registry ---

func (s *PostgresStore) CreateSubcontractor(ctx context.Context, sub *model.Subcontractor) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	var contactJSON []byte
	if sub.ContactInfo != nil {
		var err error
		contactJSON, err = json.Marshal(sub.ContactInfo)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal contact info")
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subcontractors (id, builder_id, name, contact_info, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, sub.BuilderID, sub.Name, contactJSON, sub.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert subcontractor")
}

func (s *PostgresStore) ListSubcontractors(ctx context.Context, builderID string) ([]model.Subcontractor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, builder_id, name, contact_info, created_at FROM subcontractors
		 WHERE builder_id = $1 ORDER BY seq`,
		builderID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list subcontractors")
	}
	defer rows.Close()

	var subs []model.Subcontractor
	for rows.Next() {
		var sub model.Subcontractor
		var contact []byte
		if err := rows.Scan(&sub.ID, &sub.BuilderID, &sub.Name, &contact, &sub.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan subcontractor")
		}
		if len(contact) > 0 {
			if err := json.Unmarshal(contact, &sub.ContactInfo); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal contact info")
			}
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list subcontractors iterate")
}

func (s *PostgresStore) SaveVendorMatch(ctx context.Context, m *model.VendorMatch) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vendor_matches (id, invoice_id, subcontractor_id, match_score, confirmed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.InvoiceID, textOrNil(m.SubcontractorID), m.MatchScore, m.ConfirmedAt, m.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert vendor match")
}

func (s *PostgresStore) GetVendorMatch(ctx context.Context, invoiceID string) (*model.VendorMatch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, invoice_id, subcontractor_id, match_score, confirmed_at, created_at
		 FROM vendor_matches WHERE invoice_id = $1 ORDER BY created_at DESC, seq DESC LIMIT 1`,
		invoiceID,
	)
	var m model.VendorMatch
	var subID *string
	var confirmed *time.Time
	err := row.Scan(&m.ID, &m.InvoiceID, &subID, &m.MatchScore, &confirmed, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan vendor match")
	}
	m.SubcontractorID = deref(subID)
	m.ConfirmedAt = confirmed
	return &m, nil
}

func (s *PostgresStore) ConfirmVendorMatch(ctx context.Context, invoiceID, subcontractorID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vendor_matches SET subcontractor_id = $1, confirmed_at = $2
		 WHERE id = (SELECT id FROM vendor_matches WHERE invoice_id = $3 ORDER BY created_at DESC, seq DESC LIMIT 1)`,
		subcontractorID, time.Now().UTC(), invoiceID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: confirm vendor match %s", invoiceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "vendor match %s", invoiceID)
	}
	return nil
}

// --- Cost codes ---

func (s *PostgresStore) CreateCostCode(ctx context.Context, cc *model.CostCode) error {
	if cc.ID == "" {
		cc.ID = uuid.New().String()
	}
	if cc.CreatedAt.IsZero() {
		cc.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cost_codes (id, builder_id, code, label, description, trade, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cc.ID, cc.BuilderID, cc.Code, cc.Label, textOrNil(cc.Description), textOrNil(cc.Trade), cc.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert cost code")
}

func (s *PostgresStore) ListCostCodes(ctx context.Context, builderID string) ([]model.CostCode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, builder_id, code, label, description, trade, created_at FROM cost_codes
		 WHERE builder_id = $1 ORDER BY code`,
		builderID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cost codes")
	}
	defer rows.Close()

	var codes []model.CostCode
	for rows.Next() {
		var cc model.CostCode
		var desc, trade *string
		if err := rows.Scan(&cc.ID, &cc.BuilderID, &cc.Code, &cc.Label, &desc, &trade, &cc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cost code")
		}
		cc.Description = deref(desc)
		cc.Trade = deref(trade)
		codes = append(codes, cc)
	}
	return codes, eris.Wrap(rows.Err(), "postgres: list cost codes iterate")
}

// --- Corrections and metrics ---

func (s *PostgresStore) AppendCorrection(ctx context.Context, c *model.CorrectionHistory) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO correction_history (id, invoice_id, field_name, original_value, corrected_value, corrected_by, correction_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.InvoiceID, c.FieldName, textOrNil(c.OriginalValue), textOrNil(c.CorrectedValue),
		textOrNil(c.CorrectedBy), c.CorrectionType, c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert correction")
}

func (s *PostgresStore) ListCorrections(ctx context.Context, invoiceID string) ([]model.CorrectionHistory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, invoice_id, field_name, original_value, corrected_value, corrected_by, correction_type, created_at
		 FROM correction_history WHERE invoice_id = $1 ORDER BY created_at DESC, seq DESC`,
		invoiceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corrections")
	}
	defer rows.Close()

	var corrections []model.CorrectionHistory
	for rows.Next() {
		var c model.CorrectionHistory
		var orig, corrected, by *string
		if err := rows.Scan(&c.ID, &c.InvoiceID, &c.FieldName, &orig, &corrected, &by, &c.CorrectionType, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		c.OriginalValue = deref(orig)
		c.CorrectedValue = deref(corrected)
		c.CorrectedBy = deref(by)
		corrections = append(corrections, c)
	}
	return corrections, eris.Wrap(rows.Err(), "postgres: list corrections iterate")
}

func (s *PostgresStore) AppendMetric(ctx context.Context, m *model.ProcessingMetric) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_metrics (id, invoice_id, method, processing_time_ms, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.InvoiceID, string(m.Method), m.ProcessingTimeMS, m.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert metric")
}

func (s *PostgresStore) ListMetrics(ctx context.Context, invoiceID string) ([]model.ProcessingMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, invoice_id, method, processing_time_ms, created_at FROM processing_metrics
		 WHERE invoice_id = $1 ORDER BY created_at, seq`,
		invoiceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list metrics")
	}
	defer rows.Close()

	var metrics []model.ProcessingMetric
	for rows.Next() {
		var m model.ProcessingMetric
		var method string
		if err := rows.Scan(&m.ID, &m.InvoiceID, &method, &m.ProcessingTimeMS, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		m.Method = model.ProcessingMethod(method)
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "postgres: list metrics iterate")
}

// --- helpers ---

func textOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
