package capture

import "time"

// ExportSchemaVersion is written in the header line of JSONL exports.
const ExportSchemaVersion = "1.0"

// ExportHeader is the first line of a JSONL export.
type ExportHeader struct {
	FlightrecorderExport bool   `json:"_flightrecorder_export"`
	SchemaVersion        string `json:"schema_version"`
	ExportID             string `json:"export_id"`
	ExportedAt           int64  `json:"exported_at"`
}

// ExportRecord is one capture line in a JSONL export.
type ExportRecord struct {
	ID          int64       `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	SourceApp   *string     `json:"source_app"`
	Content     string      `json:"content"`
	ContentHash string      `json:"content_hash"`
	CaptureType CaptureType `json:"capture_type"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ToExportRecord converts a stored capture to its export form.
func (c *Capture) ToExportRecord() ExportRecord {
	var id int64
	if c.ID != nil {
		id = *c.ID
	}
	return ExportRecord{
		ID:          id,
		Timestamp:   c.Timestamp,
		SourceApp:   c.SourceApp,
		Content:     c.Content,
		ContentHash: c.ContentHash,
		CaptureType: c.CaptureType,
		CreatedAt:   c.CreatedAt,
	}
}
