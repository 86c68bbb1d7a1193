package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClassifier(t *testing.T, opts ...Option) *Classifier {
	t.Helper()
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		want     FormatType
		evidence string
	}{
		{"json object", `{"event_type":"payment","amount":100}`, FormatJSON, "json_parse"},
		{"json array", `[1,2,3]`, FormatJSON, "json_parse"},
		{"email headers", "From: a@b.com\nSubject: Hi\n\nbody", FormatEmail, "rfc822_headers"},
		{"pdf magic", "%PDF-1.7 binary things", FormatPDF, "pdf_magic_bytes"},
		{"page markers", "--- Page 1 ---\nInvoice text", FormatPDF, "page_markers"},
		{"plain prose", "just some text with no structure", FormatUnknown, "no_structural_match"},
		{"empty", "   ", FormatUnknown, "empty"},
		{"invalid json braces", `{"broken":`, FormatUnknown, "no_structural_match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, _, evidence := DetectFormat([]byte(tt.content))
			assert.Equal(t, tt.want, format)
			assert.Equal(t, tt.evidence, evidence)
		})
	}
}

func TestClassify_HintTrustedOnlyWithoutStructuralMatch(t *testing.T) {
	c := newClassifier(t)

	// Structural match ignores a contradicting hint.
	r := c.Classify([]byte(`{"event_type":"payment"}`), FormatEmail)
	assert.Equal(t, FormatJSON, r.FormatType)

	// No structural match trusts the hint at 0.5.
	r = c.Classify([]byte("request for quote on pricing please"), FormatEmail)
	assert.Equal(t, FormatEmail, r.FormatType)
	assert.Equal(t, "content_type_hint", r.Metadata["format_evidence"])
	assert.LessOrEqual(t, r.Confidence, 0.5)
}

func TestClassify_UnknownFormatSkipsIntent(t *testing.T) {
	c := newClassifier(t)
	r := c.Classify([]byte("unstructured text"), "")
	assert.Equal(t, FormatUnknown, r.FormatType)
	assert.Equal(t, IntentUnknown, r.BusinessIntent)
	assert.Zero(t, r.Confidence)
}

func TestClassify_IntentDetection(t *testing.T) {
	c := newClassifier(t)

	tests := []struct {
		name    string
		content string
		want    Intent
	}{
		{"complaint email", "From: x@y.com\nSubject: complaint\n\nI am very dissatisfied and unhappy with this defective product", IntentComplaint},
		{"rfq email", "From: buyer@co.com\nTo: sales@co.com\n\nPlease send a quotation and estimate for 100 units", IntentRFQ},
		{"invoice json", `{"invoice_number":"INV-1","total":100,"line_items":[]}`, IntentInvoice},
		{"fraud json", `{"event_type":"alert","note":"suspicious unusual activity detected on account"}`, IntentFraudRisk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Classify([]byte(tt.content), "")
			assert.Equal(t, tt.want, r.BusinessIntent)
			assert.Greater(t, r.Confidence, 0.0)
			assert.LessOrEqual(t, r.Confidence, 1.0)
		})
	}
}

func TestClassify_ThresholdReportsUnknownIntent(t *testing.T) {
	c := newClassifier(t, WithConfidenceThreshold(0.99))
	r := c.Classify([]byte("From: a@b.com\nSubject: Hi\n\nsome brief note"), "")
	assert.Equal(t, FormatEmail, r.FormatType, "low intent confidence must not block format routing")
	assert.Equal(t, IntentUnknown, r.BusinessIntent)
}

func TestClassify_Deterministic(t *testing.T) {
	c := newClassifier(t)
	content := []byte("From: a@b.com\nSubject: complaint about poor service\n\nvery unhappy")

	first := c.Classify(content, "")
	for i := 0; i < 10; i++ {
		again := c.Classify(content, "")
		assert.Equal(t, first.FormatType, again.FormatType)
		assert.Equal(t, first.BusinessIntent, again.BusinessIntent)
		assert.Equal(t, first.Confidence, again.Confidence)
	}
}

func TestMergeIntents_OverrideReplacesByName(t *testing.T) {
	base := []IntentExamples{
		{Intent: IntentComplaint, Examples: []Example{{Phrase: "old"}}},
		{Intent: IntentRFQ, Examples: []Example{{Phrase: "quote"}}},
	}
	override := []IntentExamples{
		{Intent: IntentComplaint, Examples: []Example{{Phrase: "new", Weight: 2}}},
		{Intent: IntentRegulation, Examples: []Example{{Phrase: "gdpr"}}},
	}

	merged := MergeIntents(base, override)
	require.Len(t, merged, 3)
	assert.Equal(t, IntentComplaint, merged[0].Intent, "declaration order preserved")
	assert.Equal(t, "new", merged[0].Examples[0].Phrase)
	assert.Equal(t, IntentRegulation, merged[2].Intent)
}

func TestDefaultIntents_TieBreakOrder(t *testing.T) {
	intents, err := DefaultIntents()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(intents), 5)

	order := []Intent{IntentComplaint, IntentFraudRisk, IntentInvoice, IntentRFQ, IntentRegulation}
	for i, want := range order {
		assert.Equal(t, want, intents[i].Intent)
	}
}
