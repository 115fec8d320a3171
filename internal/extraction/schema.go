// Package extraction defines the structured-output shape the LLM client
// requests from the provider and reflects into a JSON Schema once per
// process lifetime, per the Open Question resolution pinning schema fields
// as Go-typed configuration rather than an untyped map.
package extraction

import (
	"sync"

	"github.com/invopop/jsonschema"
)

// Result is the 22-field structured-output contract the LLM is asked to
// fill in for every document. Field order here has no bearing on the
// generated schema's semantics, but is kept stable because the schema's
// JSON encoding must be byte-identical across calls for provider-side
// prompt caching to apply to the system/developer messages that embed it.
type Result struct {
	DocType    string  `json:"doc_type" jsonschema:"required,description=Primary document category"`
	DocSubtype string  `json:"doc_subtype" jsonschema:"description=Finer-grained classification within doc_type"`
	Confidence float64 `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`

	Issuer        string   `json:"issuer"`
	Recipient     string   `json:"recipient"`
	PrimaryDate   string   `json:"primary_date" jsonschema:"description=ISO-8601 date"`
	SecondaryDate string   `json:"secondary_date,omitempty" jsonschema:"description=ISO-8601 date"`
	TotalAmount   *float64 `json:"total_amount,omitempty"`
	Currency      string   `json:"currency,omitempty" jsonschema:"description=ISO 4217 currency code"`
	Summary       string   `json:"summary" jsonschema:"required"`
	ActionItems   []string `json:"action_items"`
	Deadlines     []string `json:"deadlines"`
	Urgency       string   `json:"urgency" jsonschema:"enum=low,enum=medium,enum=high"`
	Tags          []string `json:"tags"`

	OCRExcerpt string `json:"ocr_excerpt" jsonschema:"maxLength=500"`
	Language   string `json:"language" jsonschema:"description=ISO 639-1 language code"`

	PageCount int `json:"page_count,omitempty"`

	RequiresReview   bool     `json:"requires_review"`
	ValidationNotes  []string `json:"validation_notes,omitempty"`

	EntityNames    []string `json:"entity_names,omitempty"`
	ReferenceIDs   []string `json:"reference_ids,omitempty"`
	RelatedDocType string   `json:"related_doc_type,omitempty"`
}

var (
	schemaOnce  sync.Once
	cachedBytes []byte
)

// JSONSchema reflects Result into a JSON Schema document and caches it for
// the process lifetime — the schema text is embedded in the byte-identical
// system/developer messages, so it must never be recomputed mid-run.
func JSONSchema() []byte {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			DoNotReference:            true,
			ExpandedStruct:            true,
			RequiredFromJSONSchemaTags: false,
		}
		schema := reflector.Reflect(&Result{})
		b, err := schema.MarshalJSON()
		if err != nil {
			panic("extraction: failed to marshal reflected schema: " + err.Error())
		}
		cachedBytes = b
	})
	return cachedBytes
}
