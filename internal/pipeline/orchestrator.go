package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/walksalot/docpipe/internal/compensation"
	"github.com/walksalot/docpipe/internal/cost"
	"github.com/walksalot/docpipe/internal/documents"
	"github.com/walksalot/docpipe/internal/errkind"
	"github.com/walksalot/docpipe/internal/extraction"
	"github.com/walksalot/docpipe/internal/hashing"
	"github.com/walksalot/docpipe/internal/llm"
	"github.com/walksalot/docpipe/internal/observability"
	"github.com/walksalot/docpipe/internal/vectorstore"
)

// systemPrompt and developerPrompt are sent byte-identical on every call, so
// provider-side prompt caching discounts repeat documents. developerPrompt
// embeds the pinned extraction schema.
const systemPrompt = `You are a document metadata extraction engine. Read the attached file and return structured metadata matching the provided schema exactly. Do not invent facts not present in the document.`

func developerPrompt() string {
	return fmt.Sprintf("Respond with JSON matching this schema:\n%s", extraction.JSONSchema())
}

// Orchestrator implements Process(path) -> Result as the fixed eight-stage
// sequence S1-S8. One Orchestrator is shared by every worker in a pool; all
// of its dependencies (Store, Client, vectorstore.Client) are themselves
// safe for concurrent use.
type Orchestrator struct {
	store        *documents.Store
	llmClient    *llm.Client
	estimator    *cost.Estimator
	vectorClient *vectorstore.Client
	logger       *slog.Logger
	telemetry    Telemetry

	model           string
	vectorStoreName string
	costCeilingUSD  float64 // 0 disables the pre-flight ceiling
	costAlertT1     float64
	costAlertT2     float64
	costAlertT3     float64
}

// Telemetry bundles the observability package's collectors. Any field left
// nil is simply skipped by the Orchestrator, so a caller that doesn't need
// metrics/alerts/health can pass a zero Telemetry{}.
type Telemetry struct {
	Metrics *observability.MetricsCollector
	Alerts  *observability.AlertManager
	Health  *observability.HealthRegistry
}

// Config configures an Orchestrator's model/store bindings.
type Config struct {
	Model           string
	VectorStoreName string
	CostCeilingUSD  float64

	// CostAlertT1/T2/T3 gate warning/error/critical alerts at S6 once a
	// single document's cost reaches each threshold. Zero disables a tier.
	CostAlertT1 float64
	CostAlertT2 float64
	CostAlertT3 float64
}

// NewOrchestrator builds an Orchestrator. vectorClient may be nil to
// disable S8 entirely (documents then terminate at "completed" without a
// vector attachment). telemetry's fields may be nil to disable that signal.
func NewOrchestrator(store *documents.Store, llmClient *llm.Client, estimator *cost.Estimator, vectorClient *vectorstore.Client, cfg Config, logger *slog.Logger, telemetry Telemetry) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		store:           store,
		llmClient:       llmClient,
		estimator:       estimator,
		vectorClient:    vectorClient,
		logger:          logger,
		telemetry:       telemetry,
		model:           cfg.Model,
		vectorStoreName: cfg.VectorStoreName,
		costCeilingUSD:  cfg.CostCeilingUSD,
		costAlertT1:     cfg.CostAlertT1,
		costAlertT2:     cfg.CostAlertT2,
		costAlertT3:     cfg.CostAlertT3,
	}
}

// recordMetric is a nil-safe passthrough to telemetry.Metrics.Record.
func (o *Orchestrator) recordMetric(name string, value float64, unit string, labels map[string]string) {
	if o.telemetry.Metrics != nil {
		o.telemetry.Metrics.Record(name, value, unit, labels)
	}
}

// raiseAlert is a nil-safe passthrough to telemetry.Alerts.Raise.
func (o *Orchestrator) raiseAlert(component, message string, severity observability.Severity) {
	if o.telemetry.Alerts != nil {
		o.telemetry.Alerts.Raise(component, message, severity)
	}
}

// reportHealth is a nil-safe passthrough to telemetry.Health.Report.
func (o *Orchestrator) reportHealth(component string, healthy bool, reason string, critical bool) {
	if o.telemetry.Health != nil {
		o.telemetry.Health.Report(component, healthy, reason, critical)
	}
}

// evaluateCostAlert raises one alert for the highest configured threshold a
// single document's cost reaches: critical for T3, error for T2, warning for
// T1. It is evaluated for every document. Tiers set to zero are skipped
// (disabled).
func (o *Orchestrator) evaluateCostAlert(costUSD float64) {
	switch {
	case o.costAlertT3 > 0 && costUSD >= o.costAlertT3:
		o.raiseAlert("cost", fmt.Sprintf("document cost $%.4f reached the critical threshold $%.2f", costUSD, o.costAlertT3), observability.SeverityCritical)
	case o.costAlertT2 > 0 && costUSD >= o.costAlertT2:
		o.raiseAlert("cost", fmt.Sprintf("document cost $%.4f reached the error threshold $%.2f", costUSD, o.costAlertT2), observability.SeverityError)
	case o.costAlertT1 > 0 && costUSD >= o.costAlertT1:
		o.raiseAlert("cost", fmt.Sprintf("document cost $%.4f reached the warning threshold $%.2f", costUSD, o.costAlertT1), observability.SeverityWarning)
	}
}

// Process runs the eight canonical stages over path. Reentrant: a path
// whose hash already has a completed row returns OutcomeDuplicate without
// any LLM or vector-store calls; a path whose hash has a live but
// non-completed row (e.g. a prior vector_upload_failed) resumes from S4.
func (o *Orchestrator) Process(ctx context.Context, path string) (*Result, error) {
	pc := &ProcessingContext{Path: path, StartedAt: time.Now()}

	// S1: hash
	digest, err := hashing.HashFile(path)
	if err != nil {
		return o.fail(pc, errkind.Wrap(errkind.Internal, err, "hashing file"))
	}
	pc.SHA256Hex = digest.Hex
	pc.SHA256B64URL = digest.Base64

	// S2: dedup_check
	existing, err := o.store.FindByHash(ctx, pc.SHA256Hex)
	if err != nil {
		return o.fail(pc, err)
	}
	if existing != nil && existing.Status == documents.StatusCompleted {
		o.recordMetric("documents_processed", 1, "count", map[string]string{"outcome": string(OutcomeDuplicate)})
		return &Result{Outcome: OutcomeDuplicate, DocumentID: existing.ID, Document: existing, Duration: time.Since(pc.StartedAt)}, nil
	}

	pc.Bytes, err = os.ReadFile(path)
	if err != nil {
		return o.fail(pc, errkind.Wrap(errkind.Internal, err, "reading file"))
	}

	// S3: preflight_cost
	estimate, err := o.estimator.Estimate(o.model, o.promptMessages(), cost.FileAttachment{SizeBytes: int64(len(pc.Bytes))})
	if err != nil {
		return o.fail(pc, errkind.Wrap(errkind.Internal, err, "estimating cost"))
	}
	pc.CostEstimate = &estimate
	if o.costCeilingUSD > 0 && estimate.Cost.Total > o.costCeilingUSD {
		return o.fail(pc, errkind.New(errkind.Validation, fmt.Sprintf("preflight cost %.4f exceeds ceiling %.4f", estimate.Cost.Total, o.costCeilingUSD)))
	}

	doc, err := o.runExtractionAndPersist(ctx, pc, existing)
	if err != nil {
		return o.fail(pc, err)
	}

	// S8: attach_vector (best-effort; failure here does not fail the document)
	o.attachVector(ctx, pc, doc)

	outcome := Outcome(doc.Status)
	o.recordMetric("documents_processed", 1, "count", map[string]string{"outcome": string(outcome)})
	o.recordMetric("document_processing_latency_seconds", time.Since(pc.StartedAt).Seconds(), "seconds", map[string]string{"outcome": string(outcome)})
	return &Result{Outcome: outcome, DocumentID: doc.ID, Document: doc, Duration: time.Since(pc.StartedAt)}, nil
}

// runExtractionAndPersist covers S4-S7 inside one compensation scope: the
// uploaded LLM file is deleted if extraction, cost computation, or persist
// fails anywhere downstream of the upload.
func (o *Orchestrator) runExtractionAndPersist(ctx context.Context, pc *ProcessingContext, existing *documents.Document) (*documents.Document, error) {
	scope := compensation.Enter(ctx, "process_document", pc.SHA256Hex, o.logger)

	idempotencyToken := llm.NewIdempotencyToken()
	if existing != nil && existing.LLMFileID != nil {
		idempotencyToken = *existing.LLMFileID
	}

	// S4: upload_file
	fileID, err := o.llmClient.Upload(ctx, pc.Bytes, filepath.Base(pc.Path), idempotencyToken)
	if err != nil {
		o.reportHealth("llm_client", false, err.Error(), true)
		audit := scope.Rollback(err)
		pc.Audits = append(pc.Audits, audit)
		return nil, err
	}
	pc.LLMFileID = fileID
	scope.RegisterCompensation("cleanup_llm_upload", compensation.CleanupLLMUpload(o.llmClient, fileID))

	// S5: extract
	resp, err := o.llmClient.ExtractMetadata(ctx, llm.ExtractionRequest{
		Model:     o.model,
		System:    systemPrompt,
		Developer: developerPrompt(),
		FileID:    fileID,
		Schema:    extraction.JSONSchema(),
	})
	if err != nil {
		o.reportHealth("llm_client", false, err.Error(), true)
		audit := scope.Rollback(err)
		pc.Audits = append(pc.Audits, audit)
		return nil, err
	}
	o.reportHealth("llm_client", true, "", true)

	result, validationErrors := parseExtraction(resp.Text)

	// S6: cost_compute
	costBreakdown, err := o.estimator.ComputeCost(o.model, cost.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CachedTokens:     resp.Usage.CachedTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	})
	if err != nil {
		audit := scope.Rollback(err)
		pc.Audits = append(pc.Audits, audit)
		return nil, err
	}
	o.recordMetric("document_cost_usd", costBreakdown.Total, "gauge", map[string]string{"model": o.model})
	o.recordMetric("cost_compute_latency_seconds", time.Since(pc.StartedAt).Seconds(), "seconds", map[string]string{"model": o.model})
	o.evaluateCostAlert(costBreakdown.Total)

	draft := o.buildDocument(pc, existing, result, resp, costBreakdown, validationErrors)

	var doc *documents.Document
	if existing != nil {
		doc, err = o.store.Update(ctx, draft)
	} else {
		doc, err = o.store.Insert(ctx, draft)
	}
	if err != nil {
		audit := scope.Rollback(err)
		pc.Audits = append(pc.Audits, audit)
		return nil, err
	}

	pc.Audits = append(pc.Audits, scope.Commit())
	return doc, nil
}

func (o *Orchestrator) attachVector(ctx context.Context, pc *ProcessingContext, doc *documents.Document) {
	if o.vectorClient == nil {
		return
	}
	storeID, err := o.vectorClient.EnsureStore(ctx, o.vectorStoreName)
	if err != nil {
		o.markVectorFailed(ctx, doc, err)
		return
	}
	content := string(pc.Bytes)
	vsfID, err := o.vectorClient.AttachFile(ctx, storeID, pc.LLMFileID, content, map[string]string{
		"sha256_hex": pc.SHA256Hex,
		"doc_type":   doc.DocType,
	})
	if err != nil {
		o.markVectorFailed(ctx, doc, err)
		return
	}
	o.reportHealth("vector_store", true, "", false)
	doc.VectorStoreFileID = &vsfID
	doc.Status = documents.StatusCompleted
	if _, err := o.store.Update(ctx, doc); err != nil {
		o.logger.Error("pipeline: recording vector attachment failed", "doc_id", doc.ID, "err", err)
	}
}

func (o *Orchestrator) markVectorFailed(ctx context.Context, doc *documents.Document, cause error) {
	o.reportHealth("vector_store", false, cause.Error(), false)
	doc.Status = documents.StatusVectorUploadFailed
	if _, err := o.store.Update(ctx, doc); err != nil {
		o.logger.Error("pipeline: recording vector_upload_failed status failed", "doc_id", doc.ID, "err", err)
	}
}

func (o *Orchestrator) promptMessages() []cost.Message {
	return []cost.Message{
		{Role: cost.RoleSystem, Content: systemPrompt},
		{Role: cost.RoleDeveloper, Content: developerPrompt()},
	}
}

func (o *Orchestrator) fail(pc *ProcessingContext, err error) (*Result, error) {
	o.logger.Error("pipeline: document processing failed", "path", pc.Path, "err", err)
	o.recordMetric("documents_processed", 1, "count", map[string]string{"outcome": string(OutcomeFailed)})
	return &Result{Outcome: OutcomeFailed, Duration: time.Since(pc.StartedAt), Err: err}, err
}

// buildDocument maps a parsed extraction.Result plus usage/cost onto the
// durable Document row. If existing is non-nil (a resumed, non-completed
// row), its ID carries forward so Update targets the same row.
func (o *Orchestrator) buildDocument(pc *ProcessingContext, existing *documents.Document, result *extraction.Result, resp *llm.ExtractionResponse, costBreakdown cost.CostBreakdown, validationErrors []string) *documents.Document {
	now := time.Now().UTC()
	doc := &documents.Document{
		SHA256Hex:        pc.SHA256Hex,
		SHA256B64URL:     pc.SHA256B64URL,
		OriginalFilename: filepath.Base(pc.Path),
		FileSizeBytes:    int64(len(pc.Bytes)),
		LLMFileID:        &pc.LLMFileID,
		ProcessedAt:      &now,
		ModelUsed:        o.model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		CachedTokens:     resp.Usage.CachedTokens,
		CostUSD:          &costBreakdown.Total,
		RawResponse:      resp.Raw,
		ValidationErrors: validationErrors,
		RequiresReview:   len(validationErrors) > 0,
		Status:           documents.StatusCompleted,
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}
	if result != nil {
		doc.DocType = result.DocType
		doc.DocSubtype = result.DocSubtype
		doc.Confidence = result.Confidence
		doc.Issuer = result.Issuer
		doc.Recipient = result.Recipient
		doc.Currency = result.Currency
		doc.Summary = result.Summary
		doc.ActionItems = result.ActionItems
		doc.Deadlines = result.Deadlines
		doc.Urgency = result.Urgency
		doc.Tags = result.Tags
		doc.OCRExcerpt = result.OCRExcerpt
		doc.Language = result.Language
		doc.TotalAmount = result.TotalAmount
		doc.ExtractionQuality = qualityFor(result.Confidence)
		if t, ok := parseISODate(result.PrimaryDate); ok {
			doc.PrimaryDate = &t
		}
		if t, ok := parseISODate(result.SecondaryDate); ok {
			doc.SecondaryDate = &t
		}
	}
	return doc
}

func qualityFor(confidence float64) documents.ExtractionQuality {
	switch {
	case confidence >= 0.8:
		return documents.QualityHigh
	case confidence >= 0.5:
		return documents.QualityMedium
	default:
		return documents.QualityLow
	}
}

func parseISODate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseExtraction unmarshals the structured-output text into an
// extraction.Result and runs the minimal field-presence/enum checks the
// component design requires. Validation failures are collected and
// returned alongside the (possibly partial) result rather than failing the
// stage — S5 must record validation_errors and set requires_review=true,
// not abort.
func parseExtraction(text string) (*extraction.Result, []string) {
	var result extraction.Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, []string{fmt.Sprintf("invalid JSON in structured output: %v", err)}
	}

	var errs []string
	if result.DocType == "" {
		errs = append(errs, "doc_type is required")
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		errs = append(errs, "confidence must be between 0 and 1")
	}
	if result.Summary == "" {
		errs = append(errs, "summary is required")
	}
	switch result.Urgency {
	case "", "low", "medium", "high":
	default:
		errs = append(errs, fmt.Sprintf("urgency %q is not one of low|medium|high", result.Urgency))
	}
	if len(result.OCRExcerpt) > 500 {
		errs = append(errs, "ocr_excerpt exceeds 500 characters")
	}

	return &result, errs
}
