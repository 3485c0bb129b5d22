package knowledge

import (
	"context"
	"path/filepath"
	"strings"
	"unicode"

	apperrors "github.com/cramwell/backend-go/internal/errors"
	"github.com/cramwell/backend-go/internal/logger"
	"go.uber.org/zap"
)

// ExtractedText is the plain text of one document plus optional side
// channels. It lives only for the duration of one ingestion call.
type ExtractedText struct {
	Text     string
	Strategy string
	Images   [][]byte
	Tables   []string
}

// Release drops every buffer held by the extraction.
func (e *ExtractedText) Release() {
	if e == nil {
		return
	}
	e.Text = ""
	e.Images = nil
	e.Tables = nil
}

// ExtractionStrategy is one way of turning a file into text.
type ExtractionStrategy interface {
	Name() string
	Supports(fileType string) bool
	Extract(ctx context.Context, path string) (*ExtractedText, error)
}

// Outcome tags a strategy attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeLowQuality
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeLowQuality:
		return "low_quality"
	default:
		return "failed"
	}
}

// StrategyResult is the tagged outcome of running one strategy.
type StrategyResult struct {
	Strategy string
	Outcome  Outcome
	Text     *ExtractedText
	Reason   string
}

// SelectResult returns the first OK result.
func SelectResult(results []StrategyResult) (StrategyResult, bool) {
	for _, r := range results {
		if r.Outcome == OutcomeOK {
			return r, true
		}
	}
	return StrategyResult{}, false
}

// acceptance decides whether a strategy's text is usable.
type acceptance func(text string) (bool, string)

type stage struct {
	strategy ExtractionStrategy
	accept   acceptance
}

// QualityChecker flags text that is too short, mentions scan or handwriting
// indicators, or is dominated by symbols.
type QualityChecker struct {
	MinLength        int
	MaxNonAlnumRatio float64
	RatioMinLength   int
	Indicators       []string
}

// DefaultQualityChecker returns the stock quality thresholds.
func DefaultQualityChecker() QualityChecker {
	return QualityChecker{
		MinLength:        50,
		MaxNonAlnumRatio: 0.3,
		RatioMinLength:   100,
		Indicators: []string{
			"handwritten", "handwriting", "scanned", "image", "photo",
			"unreadable", "illegible", "blurry", "fuzzy",
		},
	}
}

// Check returns false and a reason when text should go to the fallback path.
func (q QualityChecker) Check(text string) (bool, string) {
	if ok, reason := q.CheckLength(text); !ok {
		return false, reason
	}

	lower := strings.ToLower(text)
	for _, indicator := range q.Indicators {
		if strings.Contains(lower, indicator) {
			return false, "indicator: " + indicator
		}
	}

	runes := []rune(text)
	if len(runes) > q.RatioMinLength {
		symbols := 0
		for _, r := range runes {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
				symbols++
			}
		}
		if float64(symbols)/float64(len(runes)) > q.MaxNonAlnumRatio {
			return false, "symbol ratio"
		}
	}
	return true, ""
}

// CheckLength applies only the minimum length rule.
func (q QualityChecker) CheckLength(text string) (bool, string) {
	if len([]rune(strings.TrimSpace(text))) < q.MinLength {
		return false, "too short"
	}
	return true, ""
}

func acceptNonEmpty(text string) (bool, string) {
	if strings.TrimSpace(text) == "" {
		return false, "empty"
	}
	return true, ""
}

// ExtractorOptions groups the strategies by role.
type ExtractorOptions struct {
	Quality QualityChecker
	// Structured formats with unambiguous layout; no fallback.
	Dedicated []ExtractionStrategy
	// Fast, lightweight extractors for free-form documents.
	Fast []ExtractionStrategy
	// Heavy, layout-aware extractors tried when the fast path is rejected.
	Fallback []ExtractionStrategy
	Metrics  ExtractionObserver
	Logger   *zap.Logger
}

// ExtractionObserver records strategy outcomes.
type ExtractionObserver interface {
	ObserveExtraction(strategy string, outcome string)
}

// Extractor dispatches a file to its strategies in order and returns the
// first acceptable text.
type Extractor struct {
	quality   QualityChecker
	dedicated []ExtractionStrategy
	fast      []ExtractionStrategy
	fallback  []ExtractionStrategy
	metrics   ExtractionObserver
	log       *zap.Logger
}

// NewExtractor builds an extractor from staged strategies.
func NewExtractor(opts ExtractorOptions) *Extractor {
	return &Extractor{
		quality:   opts.Quality,
		dedicated: opts.Dedicated,
		fast:      opts.Fast,
		fallback:  opts.Fallback,
		metrics:   opts.Metrics,
		log:       logger.Named(opts.Logger, "extractor"),
	}
}

// NormalizeFileType turns an extension or filename into a bare lowercase type.
func NormalizeFileType(fileTypeOrName string) string {
	ext := fileTypeOrName
	if strings.Contains(ext, ".") {
		ext = filepath.Ext(ext)
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Supports reports whether any strategy handles fileType.
func (e *Extractor) Supports(fileType string) bool {
	return len(e.plan(NormalizeFileType(fileType))) > 0
}

// plan lists the stages for a file type. Dedicated formats never reach the
// free-form path.
func (e *Extractor) plan(fileType string) []stage {
	var stages []stage
	for _, s := range e.dedicated {
		if s.Supports(fileType) {
			stages = append(stages, stage{strategy: s, accept: acceptNonEmpty})
		}
	}
	if len(stages) > 0 {
		return stages
	}

	for _, s := range e.fast {
		if s.Supports(fileType) {
			stages = append(stages, stage{strategy: s, accept: e.quality.Check})
		}
	}
	for _, s := range e.fallback {
		if s.Supports(fileType) {
			stages = append(stages, stage{strategy: s, accept: e.quality.CheckLength})
		}
	}
	return stages
}

// Extract returns the text of the file at path or apperrors.ErrUnprocessable.
func (e *Extractor) Extract(ctx context.Context, path, fileType string) (*ExtractedText, error) {
	fileType = NormalizeFileType(fileType)
	stages := e.plan(fileType)
	if len(stages) == 0 {
		e.log.Warn("no extraction strategy for file type", zap.String("file_type", fileType))
		return nil, apperrors.ErrUnprocessable
	}

	results := make([]StrategyResult, 0, len(stages))
	for _, st := range stages {
		if ctx.Err() != nil {
			break
		}
		result := e.run(ctx, st, path)
		results = append(results, result)
		if result.Outcome == OutcomeOK {
			break
		}
		result.Text.Release()
	}

	selected, ok := SelectResult(results)
	if !ok {
		e.log.Warn("document could not be processed",
			zap.String("path", path),
			zap.String("file_type", fileType),
			zap.Int("attempts", len(results)))
		return nil, apperrors.ErrUnprocessable
	}

	selected.Text.Strategy = selected.Strategy
	return selected.Text, nil
}

func (e *Extractor) run(ctx context.Context, st stage, path string) (result StrategyResult) {
	name := st.strategy.Name()
	result = StrategyResult{Strategy: name, Outcome: OutcomeFailed}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("extraction strategy panicked", zap.String("strategy", name), zap.Any("panic", r))
			result = StrategyResult{Strategy: name, Outcome: OutcomeFailed, Reason: "panic"}
		}
		if e.metrics != nil {
			e.metrics.ObserveExtraction(name, result.Outcome.String())
		}
	}()

	text, err := st.strategy.Extract(ctx, path)
	if err != nil {
		e.log.Debug("extraction strategy failed", zap.String("strategy", name), zap.Error(err))
		result.Reason = err.Error()
		return result
	}
	if text == nil {
		result.Reason = "no text"
		return result
	}

	result.Text = text
	if ok, reason := st.accept(text.Text); !ok {
		e.log.Debug("extraction rejected", zap.String("strategy", name), zap.String("reason", reason))
		result.Outcome = OutcomeLowQuality
		result.Reason = reason
		return result
	}
	result.Outcome = OutcomeOK
	return result
}
