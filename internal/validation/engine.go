// Package validation compares extracted document fields against the
// customer's declaration. The primary comparator delegates to a reasoning
// agent; when that fails for any reason the deterministic rule comparator runs
// instead. Both produce the same ValidationResult shape.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"kycflow/internal/agents"
	"kycflow/internal/cases/models"
)

// Validation methods reported in ValidationResult.Method.
const (
	MethodAgent = "agent"
	MethodRules = "rules"
)

const defaultConcurrency = 4

// Request is one document comparison.
type Request struct {
	DocumentType models.DocumentType
	Extracted    map[string]string
	User         map[string]string
}

// Comparator produces a raw verdict. Engine normalises it.
type Comparator interface {
	Name() string
	Compare(ctx context.Context, req Request) (models.ValidationResult, error)
}

// Invoker is the slice of the agent gateway used by the agent comparator.
type Invoker interface {
	Invoke(ctx context.Context, agentType models.AgentType, payload any) (*agents.Result, error)
}

// Metrics records which path produced a verdict.
type Metrics interface {
	IncValidationPath(path string)
}

// AgentComparator asks the document validation agent for a verdict.
type AgentComparator struct {
	invoker Invoker
}

func NewAgentComparator(invoker Invoker) *AgentComparator {
	return &AgentComparator{invoker: invoker}
}

func (c *AgentComparator) Name() string { return MethodAgent }

const agentInstructions = "Compare the extracted document fields with the user-declared fields. " +
	"Allow nicknames, name order, middle names and common address or company abbreviations. " +
	"Dates must match exactly across formats. Answer with JSON: overall_match, confidence_score (0-100), " +
	"discrepancies [{field, document_value, user_value, severity high|medium|low, reason}], warnings."

func (c *AgentComparator) Compare(ctx context.Context, req Request) (models.ValidationResult, error) {
	res, err := c.invoker.Invoke(ctx, models.AgentDocumentValidation, agents.DocumentValidationRequest{
		DocumentType:  req.DocumentType,
		ExtractedData: req.Extracted,
		UserData:      req.User,
		Threshold:     models.MatchThreshold,
		Instructions:  agentInstructions,
	})
	if err != nil {
		return models.ValidationResult{}, err
	}
	return ParseAgentResult(res.Payload)
}

// Engine is the Document Validation Engine. It never mutates cases.
type Engine struct {
	primary     Comparator
	fallback    Comparator
	logger      *slog.Logger
	metrics     Metrics
	concurrency int
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPrimary sets the primary comparator. A nil primary always falls back.
func WithPrimary(c Comparator) Option {
	return func(e *Engine) { e.primary = c }
}

// WithConcurrency bounds parallel comparisons in ValidateAll.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New builds an engine over fallback. The fallback must not fail.
func New(fallback Comparator, opts ...Option) *Engine {
	e := &Engine{
		fallback:    fallback,
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate compares one document. The fallback runs iff the primary fails.
func (e *Engine) Validate(ctx context.Context, extracted, user map[string]string, docType models.DocumentType) models.ValidationResult {
	req := Request{DocumentType: docType, Extracted: extracted, User: user}

	if e.primary != nil {
		start := time.Now()
		res, err := e.primary.Compare(ctx, req)
		if err == nil {
			e.observe(e.primary.Name())
			return finalize(res, e.primary.Name())
		}
		e.logger.WarnContext(ctx, "primary validation failed, using rules",
			"document_type", docType,
			"category", agents.CategoryOf(err),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	res, err := e.fallback.Compare(ctx, req)
	if err != nil {
		e.logger.ErrorContext(ctx, "fallback validation failed", "document_type", docType, "error", err)
		res = models.ValidationResult{
			ConfidenceScore: 0,
			Warnings:        []string{"validation could not be completed"},
		}
	}
	e.observe(e.fallback.Name())
	return finalize(res, e.fallback.Name())
}

// Item is one document in a batch.
type Item struct {
	DocumentID string
	Type       models.DocumentType
	Extracted  map[string]string
}

// ValidateAll compares every item against user concurrently; results keep
// the item order.
func (e *Engine) ValidateAll(ctx context.Context, items []Item, user map[string]string) []models.ValidationResult {
	results := make([]models.ValidationResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = e.Validate(gctx, item.Extracted, user, item.Type)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) observe(path string) {
	if e.metrics != nil {
		e.metrics.IncValidationPath(path)
	}
}

// finalize applies the threshold rule. A verdict below threshold without any
// discrepancy gets a medium one so reviewers see why it failed.
func finalize(res models.ValidationResult, method string) models.ValidationResult {
	res = res.Normalize()
	res.Method = method
	if !res.OverallMatch && len(res.Discrepancies) == 0 {
		res.Discrepancies = append(res.Discrepancies, models.Discrepancy{
			Field:    "overall",
			Severity: models.SeverityMedium,
			Reason:   "confidence below match threshold",
		})
	}
	return res
}

// Summarize renders unresolved discrepancies as reviewer-facing text, one
// line per failing document in required-document order.
func Summarize(results map[models.DocumentType]models.ValidationResult) string {
	var lines []string
	for _, t := range models.RequiredDocuments {
		r, ok := results[t]
		if !ok || r.OverallMatch {
			continue
		}
		parts := make([]string, 0, len(r.Discrepancies))
		for _, d := range r.Discrepancies {
			if d.DocumentValue != "" || d.UserValue != "" {
				parts = append(parts, fmt.Sprintf("%s %q vs %q (%s)", d.Field, d.DocumentValue, d.UserValue, d.Severity))
			} else {
				parts = append(parts, fmt.Sprintf("%s: %s (%s)", d.Field, d.Reason, d.Severity))
			}
		}
		lines = append(lines, fmt.Sprintf("%s confidence %d: %s", t, r.ConfidenceScore, strings.Join(parts, "; ")))
	}
	return strings.Join(lines, "\n")
}
