// Package classify determines the structural format and business intent of
// raw content. Classification is a pure function: the same input and lexicon
// always produce the same result, with no hidden randomness. Confidence is
// informational metadata — it never gates routing, it only feeds downstream
// escalation heuristics.
package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// FormatType is the structural category of input content.
type FormatType string

const (
	FormatEmail   FormatType = "email"
	FormatJSON    FormatType = "json"
	FormatPDF     FormatType = "pdf"
	FormatUnknown FormatType = "unknown"
)

// Intent is the classified business purpose of the content.
type Intent string

const (
	IntentComplaint  Intent = "complaint"
	IntentFraudRisk  Intent = "fraud_risk"
	IntentInvoice    Intent = "invoice"
	IntentRFQ        Intent = "rfq"
	IntentRegulation Intent = "regulation"
	IntentUnknown    Intent = "unknown"
)

// Result is the classifier output for one input.
type Result struct {
	FormatType     FormatType        `json:"format_type"`
	BusinessIntent Intent            `json:"business_intent"`
	Confidence     float64           `json:"confidence"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Classifier scores raw content against the few-shot intent table.
type Classifier struct {
	intents   []IntentExamples
	threshold float64
}

// Option configures a Classifier.
type Option func(*classifierConfig)

type classifierConfig struct {
	lexiconFile string
	threshold   float64
	thresholdOK bool
}

// WithLexiconFile layers a global intent-example override file on top of
// the embedded defaults. A missing file is a no-op.
func WithLexiconFile(path string) Option {
	return func(c *classifierConfig) { c.lexiconFile = path }
}

// WithConfidenceThreshold sets the floor below which the intent is reported
// as unknown. The session still proceeds to the format agent either way.
func WithConfidenceThreshold(threshold float64) Option {
	return func(c *classifierConfig) { c.threshold = threshold; c.thresholdOK = true }
}

// New creates a classifier from the embedded intent table plus any
// configured override layers.
func New(opts ...Option) (*Classifier, error) {
	var cfg classifierConfig
	for _, o := range opts {
		o(&cfg)
	}

	intents, err := DefaultIntents()
	if err != nil {
		return nil, fmt.Errorf("loading default intents: %w", err)
	}

	if cfg.lexiconFile != "" {
		override, err := LoadIntentFile(cfg.lexiconFile)
		if err != nil {
			return nil, fmt.Errorf("loading intent override file: %w", err)
		}
		if override != nil {
			intents = MergeIntents(intents, override.Intents)
		}
	}

	threshold := 0.3
	if cfg.thresholdOK {
		threshold = cfg.threshold
	}

	return &Classifier{intents: intents, threshold: threshold}, nil
}

// Classify detects format and business intent for raw content. The hint is
// only trusted when no structural sniff matches; it then yields confidence
// 0.5. With neither a structural match nor a hint the format is unknown
// with confidence 0 and no intent is scored.
func (c *Classifier) Classify(content []byte, hint FormatType) Result {
	format, formatConf, evidence := DetectFormat(content)
	if format == FormatUnknown && hint != "" && hint != FormatUnknown {
		format = hint
		formatConf = 0.5
		evidence = "content_type_hint"
	}

	result := Result{
		FormatType:     format,
		BusinessIntent: IntentUnknown,
		Metadata: map[string]string{
			"format_evidence":   evidence,
			"format_confidence": fmt.Sprintf("%.2f", formatConf),
		},
	}

	if format == FormatUnknown {
		return result
	}

	intent, score, phrase := c.scoreIntent(string(content))
	result.Metadata["intent_confidence"] = fmt.Sprintf("%.2f", score)
	if phrase != "" {
		result.Metadata["intent_best_phrase"] = phrase
	}

	// The hint path caps overall confidence at the hint's trust level.
	result.Confidence = score
	if result.Confidence > formatConf {
		result.Confidence = formatConf
	}

	if score >= c.threshold {
		result.BusinessIntent = intent
	}

	return result
}

// scoreIntent scores the input against every example phrase and returns the
// winning intent, its score, and the best-matching phrase. Declaration order
// breaks ties: earlier intents win because they only get displaced by a
// strictly higher score.
func (c *Classifier) scoreIntent(content string) (Intent, float64, string) {
	text := strings.ToLower(content)
	inputTokens := tokenSet(text)

	best := IntentUnknown
	bestScore := 0.0
	bestPhrase := ""

	for _, ie := range c.intents {
		for _, ex := range ie.Examples {
			score := scoreExample(text, inputTokens, ex)
			if score > bestScore {
				best = ie.Intent
				bestScore = score
				bestPhrase = ex.Phrase
			}
		}
	}

	if bestScore > 1.0 {
		bestScore = 1.0
	}
	return best, bestScore, bestPhrase
}

// scoreExample combines token-overlap ratio with an exact-substring bonus,
// weighted by the example weight. Monotonic in matched evidence.
func scoreExample(text string, inputTokens map[string]bool, ex Example) float64 {
	phrase := strings.ToLower(ex.Phrase)
	phraseTokens := strings.Fields(phrase)
	if len(phraseTokens) == 0 {
		return 0
	}

	matched := 0
	for _, tok := range phraseTokens {
		if inputTokens[tok] {
			matched++
		}
	}
	score := float64(matched) / float64(len(phraseTokens))

	if strings.Contains(text, phrase) {
		score += 0.25
	}

	weight := ex.Weight
	if weight <= 0 {
		weight = 1.0
	}
	return score * weight
}

func tokenSet(text string) map[string]bool {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

var pdfMagic = []byte("%PDF")

// DetectFormat structurally sniffs content. Detection order is fixed:
// JSON parse, then an RFC822-style header block, then PDF magic bytes or
// binary stream markers. The first match wins.
func DetectFormat(content []byte) (FormatType, float64, string) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return FormatUnknown, 0, "empty"
	}

	if (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return FormatJSON, 0.9, "json_parse"
	}

	if hasHeaderBlock(trimmed) {
		return FormatEmail, 0.85, "rfc822_headers"
	}

	if bytes.HasPrefix(trimmed, pdfMagic) {
		return FormatPDF, 0.95, "pdf_magic_bytes"
	}
	if bytes.Contains(trimmed, []byte("--- Page ")) {
		return FormatPDF, 0.8, "page_markers"
	}
	if !utf8.Valid(trimmed) || (bytes.Contains(trimmed, []byte("stream")) && bytes.Contains(trimmed, []byte("endstream"))) {
		return FormatPDF, 0.7, "binary_stream"
	}

	return FormatUnknown, 0, "no_structural_match"
}

// emailHeaders are the header names counted toward the RFC822 sniff.
var emailHeaders = []string{"from:", "to:", "subject:", "date:", "cc:", "bcc:", "reply-to:"}

// hasHeaderBlock reports whether the lines before the first blank line look
// like an RFC822 header block (at least two known headers).
func hasHeaderBlock(content []byte) bool {
	found := 0
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == "" {
			break
		}
		lower := strings.ToLower(line)
		for _, h := range emailHeaders {
			if strings.HasPrefix(lower, h) {
				found++
				break
			}
		}
	}
	return found >= 2
}
