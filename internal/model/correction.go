package model

import "time"

// CorrectionHistory is one append-only audit record for a human field edit.
// Rows are never updated or deleted.
type CorrectionHistory struct {
	ID             string    `json:"id"`
	InvoiceID      string    `json:"invoice_id"`
	FieldName      string    `json:"field_name"`
	OriginalValue  string    `json:"original_value,omitempty"`
	CorrectedValue string    `json:"corrected_value,omitempty"`
	CorrectedBy    string    `json:"corrected_by,omitempty"`
	CorrectionType string    `json:"correction_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// CorrectionsResponse reports the outcome of a correction request.
type CorrectionsResponse struct {
	InvoiceID        string              `json:"invoice_id"`
	CorrectionsSaved int                 `json:"corrections_saved"`
	Corrections      []CorrectionHistory `json:"corrections"`
	Message          string              `json:"message,omitempty"`
}

// ProcessingMetric records per-strategy timing for an invoice. Append-only,
// diagnostics only.
type ProcessingMetric struct {
	ID               string           `json:"id"`
	InvoiceID        string           `json:"invoice_id"`
	Method           ProcessingMethod `json:"method"`
	ProcessingTimeMS int64            `json:"processing_time_ms"`
	CreatedAt        time.Time        `json:"created_at"`
}
