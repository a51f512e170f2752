package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/buildflow/invoicepipe/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id                TEXT PRIMARY KEY,
	builder_id        TEXT NOT NULL,
	filename          TEXT NOT NULL,
	file_path         TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'uploaded',
	processing_method TEXT,
	uploaded_at       DATETIME NOT NULL,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extraction_results (
	id                 TEXT PRIMARY KEY,
	invoice_id         TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	method             TEXT NOT NULL,
	status             TEXT NOT NULL,
	vendor_name        TEXT,
	invoice_number     TEXT,
	invoice_date       TEXT,
	total_amount       TEXT,
	confidence         REAL NOT NULL,
	processing_time_ms INTEGER NOT NULL,
	raw_output         TEXT,
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS line_items (
	id             TEXT PRIMARY KEY,
	invoice_id     TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	result_id      TEXT REFERENCES extraction_results(id) ON DELETE CASCADE,
	description    TEXT NOT NULL,
	quantity       TEXT,
	unit_price     TEXT,
	amount         TEXT NOT NULL,
	suggested_code TEXT,
	confidence     REAL,
	confirmed_code TEXT,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS subcontractors (
	id           TEXT PRIMARY KEY,
	builder_id   TEXT NOT NULL,
	name         TEXT NOT NULL,
	contact_info TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS vendor_matches (
	id               TEXT PRIMARY KEY,
	invoice_id       TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	subcontractor_id TEXT,
	match_score      INTEGER NOT NULL,
	confirmed_at     DATETIME,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cost_codes (
	id          TEXT PRIMARY KEY,
	builder_id  TEXT NOT NULL,
	code        TEXT NOT NULL,
	label       TEXT NOT NULL,
	description TEXT,
	trade       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (builder_id, code)
);

CREATE TABLE IF NOT EXISTS correction_history (
	id              TEXT PRIMARY KEY,
	invoice_id      TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	field_name      TEXT NOT NULL,
	original_value  TEXT,
	corrected_value TEXT,
	corrected_by    TEXT,
	correction_type TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_metrics (
	id                 TEXT PRIMARY KEY,
	invoice_id         TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	method             TEXT NOT NULL,
	processing_time_ms INTEGER NOT NULL,
	created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_builder ON invoices(builder_id);
CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
CREATE INDEX IF NOT EXISTS idx_results_invoice ON extraction_results(invoice_id);
CREATE INDEX IF NOT EXISTS idx_line_items_invoice ON line_items(invoice_id);
CREATE INDEX IF NOT EXISTS idx_line_items_result ON line_items(result_id);
CREATE INDEX IF NOT EXISTS idx_subcontractors_builder ON subcontractors(builder_id);
CREATE INDEX IF NOT EXISTS idx_vendor_matches_invoice ON vendor_matches(invoice_id);
CREATE INDEX IF NOT EXISTS idx_cost_codes_builder ON cost_codes(builder_id);
CREATE INDEX IF NOT EXISTS idx_corrections_invoice ON correction_history(invoice_id);
CREATE INDEX IF NOT EXISTS idx_metrics_invoice ON processing_metrics(invoice_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Invoices ---

func (s *SQLiteStore) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invoices (id, builder_id, filename, file_path, status, processing_method, uploaded_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.BuilderID, inv.Filename, inv.FilePath, string(inv.Status),
		nullString(string(inv.ProcessingMethod)), inv.UploadedAt, now, now,
	)
	return eris.Wrap(err, "sqlite: insert invoice")
}

func (s *SQLiteStore) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, builder_id, filename, file_path, status, processing_method, uploaded_at, created_at, updated_at
		 FROM invoices WHERE id = ?`, id)

	var inv model.Invoice
	var status string
	var method sql.NullString
	err := row.Scan(&inv.ID, &inv.BuilderID, &inv.Filename, &inv.FilePath, &status,
		&method, &inv.UploadedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: invoice %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan invoice")
	}
	inv.Status = model.InvoiceStatus(status)
	if method.Valid {
		inv.ProcessingMethod = model.ProcessingMethod(method.String)
	}
	return &inv, nil
}

func (s *SQLiteStore) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, error) {
	query := `SELECT id, builder_id, filename, file_path, status, processing_method, uploaded_at, created_at, updated_at
	          FROM invoices WHERE 1=1`
	var args []any

	if filter.BuilderID != "" {
		query += ` AND builder_id = ?`
		args = append(args, filter.BuilderID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list invoices")
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		var inv model.Invoice
		var status string
		var method sql.NullString
		if err := rows.Scan(&inv.ID, &inv.BuilderID, &inv.Filename, &inv.FilePath, &status,
			&method, &inv.UploadedAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan invoice row")
		}
		inv.Status = model.InvoiceStatus(status)
		if method.Valid {
			inv.ProcessingMethod = model.ProcessingMethod(method.String)
		}
		invoices = append(invoices, inv)
	}
	return invoices, eris.Wrap(rows.Err(), "sqlite: list invoices iterate")
}

func (s *SQLiteStore) UpdateInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update invoice status %s", id)
	}
	return checkRowsAffected(res, "invoice", id)
}

func (s *SQLiteStore) SetProcessingMethod(ctx context.Context, id string, method model.ProcessingMethod) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET processing_method = ?, updated_at = ? WHERE id = ?`,
		string(method), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set processing method %s", id)
	}
	return checkRowsAffected(res, "invoice", id)
}

func (s *SQLiteStore) DeleteInvoice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete invoice %s", id)
	}
	return checkRowsAffected(res, "invoice", id)
}

// --- Extraction results ---

func (s *SQLiteStore) CreateExtractionResult(ctx context.Context, res *model.ExtractionResult) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	rawJSON, err := marshalNullable(res.RawOutput)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal raw output")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO extraction_results (id, invoice_id, method, status, vendor_name, invoice_number, invoice_date, total_amount, confidence, processing_time_ms, raw_output, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.InvoiceID, string(res.Method), string(res.Status),
		nullString(res.Fields.VendorName), nullString(res.Fields.InvoiceNumber),
		nullString(res.Fields.InvoiceDate), decimalToNull(res.Fields.TotalAmount),
		res.Confidence, res.ProcessingTimeMS, rawJSON, res.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert extraction result")
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
		_, err = tx.ExecContext(ctx,
			`INSERT INTO line_items (id, invoice_id, result_id, description, quantity, unit_price, amount, suggested_code, confidence, confirmed_code, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.InvoiceID, item.ResultID, item.Description,
			decimalToNull(item.Quantity), decimalToNull(item.UnitPrice), item.Amount.String(),
			nullString(item.SuggestedCode), item.Confidence, nullString(item.ConfirmedCode), item.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert line item")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit extraction result")
}

const resultColumns = `id, invoice_id, method, status, vendor_name, invoice_number, invoice_date, total_amount, confidence, processing_time_ms, raw_output, created_at`

func (s *SQLiteStore) LatestResultByMethod(ctx context.Context, invoiceID string, method model.ProcessingMethod) (*model.ExtractionResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM extraction_results
		 WHERE invoice_id = ? AND method = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		invoiceID, string(method),
	)
	return s.scanResult(ctx, row)
}

func (s *SQLiteStore) BestResult(ctx context.Context, invoiceID string) (*model.ExtractionResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM extraction_results
		 WHERE invoice_id = ?
		 ORDER BY confidence DESC, created_at DESC, rowid DESC LIMIT 1`,
		invoiceID,
	)
	return s.scanResult(ctx, row)
}

func (s *SQLiteStore) UpdateResultFields(ctx context.Context, resultID string, fields model.ExtractedFields) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_results SET vendor_name = ?, invoice_number = ?, invoice_date = ?, total_amount = ? WHERE id = ?`,
		nullString(fields.VendorName), nullString(fields.InvoiceNumber),
		nullString(fields.InvoiceDate), decimalToNull(fields.TotalAmount), resultID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update result fields %s", resultID)
	}
	return checkRowsAffected(res, "extraction result", resultID)
}

func (s *SQLiteStore) scanResult(ctx context.Context, row scannable) (*model.ExtractionResult, error) {
	var r model.ExtractionResult
	var method, status string
	var vendor, number, date, total, raw sql.NullString

	err := row.Scan(&r.ID, &r.InvoiceID, &method, &status, &vendor, &number, &date, &total,
		&r.Confidence, &r.ProcessingTimeMS, &raw, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan extraction result")
	}

	r.Method = model.ProcessingMethod(method)
	r.Status = model.ExtractionStatus(status)
	r.Fields.VendorName = vendor.String
	r.Fields.InvoiceNumber = number.String
	r.Fields.InvoiceDate = date.String
	if total.Valid {
		d, err := decimal.NewFromString(total.String)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse total amount")
		}
		r.Fields.TotalAmount = &d
	}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &r.RawOutput); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal raw output")
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

func (s *SQLiteStore) ListLineItemsByResult(ctx context.Context, resultID string) ([]model.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invoice_id, result_id, description, quantity, unit_price, amount, suggested_code, confidence, confirmed_code, created_at
		 FROM line_items WHERE result_id = ? ORDER BY rowid`,
		resultID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list line items")
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		var item model.LineItem
		var resID, qty, price, suggested, confirmed sql.NullString
		var amount string
		var conf sql.NullFloat64
		if err := rows.Scan(&item.ID, &item.InvoiceID, &resID, &item.Description,
			&qty, &price, &amount, &suggested, &conf, &confirmed, &item.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan line item")
		}
		item.ResultID = resID.String
		item.SuggestedCode = suggested.String
		item.ConfirmedCode = confirmed.String
		if conf.Valid {
			c := conf.Float64
			item.Confidence = &c
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse line item amount")
		}
		item.Amount = amt
		if item.Quantity, err = nullToDecimal(qty); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse quantity")
		}
		if item.UnitPrice, err = nullToDecimal(price); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse unit price")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list line items iterate")
}

func (s *SQLiteStore) UpdateLineItemSuggestion(ctx context.Context, lineItemID, code string, confidence float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE line_items SET suggested_code = ?, confidence = ? WHERE id = ?`,
		code, confidence, lineItemID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update line item suggestion %s", lineItemID)
	}
	return checkRowsAffected(res, "line item", lineItemID)
}

func (s *SQLiteStore) ConfirmLineItemCode(ctx context.Context, lineItemID, code string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE line_items SET confirmed_code = ? WHERE id = ?`,
		code, lineItemID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: confirm line item code %s", lineItemID)
	}
	return checkRowsAffected(res, "line item", lineItemID)
}

// --- Vendor registry ---

func (s *SQLiteStore) CreateSubcontractor(ctx context.Context, sub *model.Subcontractor) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	contactJSON, err := marshalNullable(sub.ContactInfo)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contact info")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subcontractors (id, builder_id, name, contact_info, created_at) VALUES (?, ?, ?, ?, ?)`,
		sub.ID, sub.BuilderID, sub.Name, contactJSON, sub.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert subcontractor")
}

// ListSubcontractors returns the builder's vendors in registry insertion
// order, which the resolver relies on for stable tie-breaking.
func (s *SQLiteStore) ListSubcontractors(ctx context.Context, builderID string) ([]model.Subcontractor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, builder_id, name, contact_info, created_at FROM subcontractors
		 WHERE builder_id = ? ORDER BY rowid`,
		builderID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list subcontractors")
	}
	defer rows.Close()

	var subs []model.Subcontractor
	for rows.Next() {
		var sub model.Subcontractor
		var contact sql.NullString
		if err := rows.Scan(&sub.ID, &sub.BuilderID, &sub.Name, &contact, &sub.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan subcontractor")
		}
		if contact.Valid && contact.String != "" {
			if err := json.Unmarshal([]byte(contact.String), &sub.ContactInfo); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal contact info")
			}
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list subcontractors iterate")
}

func (s *SQLiteStore) SaveVendorMatch(ctx context.Context, m *model.VendorMatch) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vendor_matches (id, invoice_id, subcontractor_id, match_score, confirmed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.InvoiceID, nullString(m.SubcontractorID), m.MatchScore, m.ConfirmedAt, m.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert vendor match")
}

func (s *SQLiteStore) GetVendorMatch(ctx context.Context, invoiceID string) (*model.VendorMatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, invoice_id, subcontractor_id, match_score, confirmed_at, created_at
		 FROM vendor_matches WHERE invoice_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		invoiceID,
	)
	var m model.VendorMatch
	var subID sql.NullString
	var confirmed sql.NullTime
	err := row.Scan(&m.ID, &m.InvoiceID, &subID, &m.MatchScore, &confirmed, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan vendor match")
	}
	m.SubcontractorID = subID.String
	if confirmed.Valid {
		m.ConfirmedAt = &confirmed.Time
	}
	return &m, nil
}

func (s *SQLiteStore) ConfirmVendorMatch(ctx context.Context, invoiceID, subcontractorID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vendor_matches SET subcontractor_id = ?, confirmed_at = ?
		 WHERE id = (SELECT id FROM vendor_matches WHERE invoice_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1)`,
		subcontractorID, time.Now().UTC(), invoiceID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: confirm vendor match %s", invoiceID)
	}
	return checkRowsAffected(res, "vendor match", invoiceID)
}

// --- Cost codes ---

func (s *SQLiteStore) CreateCostCode(ctx context.Context, cc *model.CostCode) error {
	if cc.ID == "" {
		cc.ID = uuid.New().String()
	}
	if cc.CreatedAt.IsZero() {
		cc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_codes (id, builder_id, code, label, description, trade, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cc.ID, cc.BuilderID, cc.Code, cc.Label, nullString(cc.Description), nullString(cc.Trade), cc.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert cost code")
}

func (s *SQLiteStore) ListCostCodes(ctx context.Context, builderID string) ([]model.CostCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, builder_id, code, label, description, trade, created_at FROM cost_codes
		 WHERE builder_id = ? ORDER BY code`,
		builderID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cost codes")
	}
	defer rows.Close()

	var codes []model.CostCode
	for rows.Next() {
		var cc model.CostCode
		var desc, trade sql.NullString
		if err := rows.Scan(&cc.ID, &cc.BuilderID, &cc.Code, &cc.Label, &desc, &trade, &cc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cost code")
		}
		cc.Description = desc.String
		cc.Trade = trade.String
		codes = append(codes, cc)
	}
	return codes, eris.Wrap(rows.Err(), "sqlite: list cost codes iterate")
}

// --- Corrections and metrics ---

func (s *SQLiteStore) AppendCorrection(ctx context.Context, c *model.CorrectionHistory) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO correction_history (id, invoice_id, field_name, original_value, corrected_value, corrected_by, correction_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.InvoiceID, c.FieldName, nullString(c.OriginalValue), nullString(c.CorrectedValue),
		nullString(c.CorrectedBy), c.CorrectionType, c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert correction")
}

func (s *SQLiteStore) ListCorrections(ctx context.Context, invoiceID string) ([]model.CorrectionHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invoice_id, field_name, original_value, corrected_value, corrected_by, correction_type, created_at
		 FROM correction_history WHERE invoice_id = ? ORDER BY created_at DESC, rowid DESC`,
		invoiceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corrections")
	}
	defer rows.Close()

	var corrections []model.CorrectionHistory
	for rows.Next() {
		var c model.CorrectionHistory
		var orig, corrected, by sql.NullString
		if err := rows.Scan(&c.ID, &c.InvoiceID, &c.FieldName, &orig, &corrected, &by, &c.CorrectionType, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correction")
		}
		c.OriginalValue = orig.String
		c.CorrectedValue = corrected.String
		c.CorrectedBy = by.String
		corrections = append(corrections, c)
	}
	return corrections, eris.Wrap(rows.Err(), "sqlite: list corrections iterate")
}

func (s *SQLiteStore) AppendMetric(ctx context.Context, m *model.ProcessingMetric) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_metrics (id, invoice_id, method, processing_time_ms, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.InvoiceID, string(m.Method), m.ProcessingTimeMS, m.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert metric")
}

func (s *SQLiteStore) ListMetrics(ctx context.Context, invoiceID string) ([]model.ProcessingMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invoice_id, method, processing_time_ms, created_at FROM processing_metrics
		 WHERE invoice_id = ? ORDER BY created_at, rowid`,
		invoiceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list metrics")
	}
	defer rows.Close()

	var metrics []model.ProcessingMetric
	for rows.Next() {
		var m model.ProcessingMetric
		var method string
		if err := rows.Scan(&m.ID, &m.InvoiceID, &method, &m.ProcessingTimeMS, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		m.Method = model.ProcessingMethod(method)
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "sqlite: list metrics iterate")
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decimalToNull(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullToDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func marshalNullable(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
