// Package documents implements the sole durable store for extracted-document
// rows, their unique-hash index, soft-delete, and status state machine.
package documents

import "time"

// Status is the document's position in the pipeline's state machine.
type Status string

const (
	StatusPending             Status = "pending"
	StatusProcessing          Status = "processing"
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
	StatusDuplicate           Status = "duplicate"
	StatusVectorUploadFailed  Status = "vector_upload_failed"
)

// ExtractionQuality is a coarse confidence signal on the extracted fields,
// separate from the per-field Document.Confidence score.
type ExtractionQuality string

const (
	QualityHigh   ExtractionQuality = "high"
	QualityMedium ExtractionQuality = "medium"
	QualityLow    ExtractionQuality = "low"
)

// Document is the durable row described by the data model: one row per
// distinct file content hash.
type Document struct {
	ID int64

	SHA256Hex    string
	SHA256B64URL string

	OriginalFilename string
	FileSizeBytes    int64
	PageCount        *int

	DocType    string
	DocSubtype string
	Confidence float64

	Issuer        string
	Recipient     string
	PrimaryDate   *time.Time
	SecondaryDate *time.Time
	TotalAmount   *float64
	Currency      string // ISO 4217
	Summary       string
	ActionItems   []string
	Deadlines     []string
	Urgency       string
	Tags          []string

	OCRExcerpt string // <=500 chars
	Language   string // ISO 639-1

	LLMFileID         *string
	VectorStoreFileID *string

	ProcessedAt      *time.Time
	DurationMS       int64
	ModelUsed        string
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	CostUSD          *float64

	ExtractionQuality ExtractionQuality
	ValidationErrors  []string
	RequiresReview    bool

	RawResponse []byte // opaque JSON blob

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	Status Status
}

// IsLive reports whether the row is visible to FindByHash (not soft-deleted).
func (d *Document) IsLive() bool { return d.DeletedAt == nil }
