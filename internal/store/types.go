package store

import "time"

// Status is the lifecycle state of a single processable unit
// (a page transcription or a document summary).
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted" // in flight in an external batch
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DocStatus is the computed aggregate transcription state of a document.
type DocStatus string

const (
	DocStatusPending   DocStatus = "pending"
	DocStatusPartial   DocStatus = "partial"
	DocStatusCompleted DocStatus = "completed"
)

// Kind selects which unit table an operation addresses.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindSummarization Kind = "summarization"
)

// PageBreakMarker separates page transcriptions when they are combined
// into a single document text for summarization.
const PageBreakMarker = "\n\n--- page break ---\n\n"

// ResultMeta records which backend produced a unit's result and how.
// It is stored as a JSON blob on the unit row; business logic only ever
// sees this struct.
type ResultMeta struct {
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
	BatchID     string `json:"batch_id,omitempty"`
	Error       string `json:"error,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// Document is one logical letter, identified by its date label.
// TranscriptionStatus is the computed aggregate over the document's pages
// and is recomputed in the same transaction as any page write.
type Document struct {
	ID                  int64       `json:"id"`
	Date                string      `json:"date"`  // YYYY-MM-DD
	Label               string      `json:"label"` // original YYMMDD token
	TranscriptionStatus DocStatus   `json:"transcription_status"`
	SummaryStatus       Status      `json:"summary_status"`
	Summary             string      `json:"summary,omitempty"`
	SummaryMeta         *ResultMeta `json:"summary_meta,omitempty"`
	PageCount           int         `json:"page_count"`
	CreatedAt           time.Time   `json:"created_at"`
}

// Page is one scanned PDF part of a document: the transcription unit.
type Page struct {
	ID            int64       `json:"id"`
	DocumentID    int64       `json:"document_id"`
	PartIndex     int         `json:"part_index"`
	SourcePath    string      `json:"source_path"`
	PDFPages      int         `json:"pdf_pages"`
	Status        Status      `json:"status"`
	Transcription string      `json:"transcription,omitempty"`
	Meta          *ResultMeta `json:"meta,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Unit is the runner-facing view of one item of pending work.
// For transcription units ID is a page id; for summarization units it is
// a document id.
type Unit struct {
	ID           int64
	Kind         Kind
	DocumentID   int64
	DocumentDate string
	PartIndex    int
	SourcePath   string
}

// BatchJob is one externally-submitted bulk job. Its status mirrors what
// the vendor reports; it is never invented locally. ProcessedAt is the
// at-most-once guard for result reconciliation.
type BatchJob struct {
	ID             string     `json:"id"` // externally assigned batch id
	Purpose        string     `json:"purpose"`
	Status         string     `json:"status"`
	UnitIDs        []int64    `json:"unit_ids"`
	SubmissionRef  string     `json:"submission_ref,omitempty"`
	InputFileID    string     `json:"input_file_id,omitempty"`
	OutputFileID   string     `json:"output_file_id,omitempty"`
	ErrorFileID    string     `json:"error_file_id,omitempty"`
	RequestCount   int        `json:"request_count"`
	CompletedCount int        `json:"completed_count"`
	FailedCount    int        `json:"failed_count"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	ProcessedNote  string     `json:"processed_note,omitempty"`
}

// Processed notes recorded when a batch job is closed out.
const (
	ProcessedNoteReconciled = "reconciled"
	ProcessedNoteCleanedUp  = "cleaned_up"
)

// Terminal reports whether the mirrored vendor status is terminal.
func (j *BatchJob) Terminal() bool {
	switch j.Status {
	case "completed", "failed", "expired", "cancelled":
		return true
	}
	return false
}
