package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildflow/invoicepipe/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetInvoice_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, builder_id, filename, file_path, status, processing_method, uploaded_at, created_at, updated_at`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetInvoice(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetInvoice_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	method := "vision"
	mock.ExpectQuery(`SELECT id, builder_id, filename, file_path, status, processing_method, uploaded_at, created_at, updated_at`).
		WithArgs("inv-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "builder_id", "filename", "file_path", "status", "processing_method", "uploaded_at", "created_at", "updated_at",
		}).AddRow("inv-1", "builder-1", "invoice.pdf", "/uploads/invoice.pdf", "extracted", &method, now, now, now))

	inv, err := s.GetInvoice(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "builder-1", inv.BuilderID)
	assert.Equal(t, model.StatusExtracted, inv.Status)
	assert.Equal(t, model.MethodVision, inv.ProcessingMethod)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateInvoiceStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE invoices SET status`).
		WithArgs("approved", pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateInvoiceStatus(context.Background(), "nope", model.StatusApproved)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetVendorMatch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, invoice_id, subcontractor_id, match_score, confirmed_at, created_at`).
		WithArgs("inv-1").
		WillReturnError(pgx.ErrNoRows)

	m, err := s.GetVendorMatch(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteInvoice(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM invoices WHERE id`).
		WithArgs("inv-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.DeleteInvoice(context.Background(), "inv-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendMetric(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO processing_metrics`).
		WithArgs(pgxmock.AnyArg(), "inv-1", "traditional", int64(800), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendMetric(context.Background(), &model.ProcessingMetric{
		InvoiceID: "inv-1", Method: model.MethodTraditional, ProcessingTimeMS: 800,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
