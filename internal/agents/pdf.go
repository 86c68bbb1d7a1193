package agents

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/HarinGuptha/FlowBit-Harin/internal/action"
	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
)

var (
	pageMarkerRe = regexp.MustCompile(`(?m)^--- Page (\d+) ---\s*$`)
	pdfStringRe  = regexp.MustCompile(`\(([^()\\]{2,})\)`)
	lineItemRe   = regexp.MustCompile(`(?m)^\s*(\S.{0,58}?)\s{2,}(\d+)\s+\$?([\d,]+(?:\.\d+)?)\s+\$?([\d,]+(?:\.\d+)?)\s*$`)
	grandTotalRe = regexp.MustCompile(`(?im)^\s*(?:grand\s+)?total(?:\s+due)?\s*[:\s]\s*\$?\s*([\d,]+(?:\.\d+)?)`)
)

// docTypeKeywords classifies extracted text into a document type by hit
// count; zero hits classifies as "other".
var docTypeKeywords = []struct {
	Type     string
	Keywords []string
}{
	{"invoice", []string{"invoice", "bill to", "amount due", "subtotal", "invoice number", "payment terms"}},
	{"contract", []string{"agreement", "hereinafter", "terms and conditions", "contract", "party of the first part", "governing law"}},
	{"regulatory_notice", []string{"notice of", "pursuant to", "regulation", "directive", "enforcement", "compliance deadline"}},
}

// riskIndicators are phrase families recorded in the analysis only; they
// never propose actions on their own.
var riskIndicators = map[string][]string{
	"financial": {"penalty", "liquidated damages", "late fee", "interest accrual"},
	"legal":     {"indemnify", "liability", "breach", "termination for cause"},
	"security":  {"confidential", "classified", "restricted distribution"},
}

// LineItem is one parsed invoice row.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// PDFAnalysis is the PDF agent's structured output.
type PDFAnalysis struct {
	DocumentType   string              `json:"document_type"`
	PageCount      int                 `json:"page_count"`
	PageErrors     []string            `json:"page_errors,omitempty"`
	LineItems      []LineItem          `json:"line_items,omitempty"`
	InvoiceTotal   float64             `json:"invoice_total"`
	Regulations    []string            `json:"regulations,omitempty"`
	RiskIndicators map[string][]string `json:"risk_indicators,omitempty"`
}

// PDFAgent extracts text from raw PDF bytes or pre-extracted page text
// and scans it for invoice totals, compliance keywords, and risk phrases.
type PDFAgent struct {
	compliance *ComplianceSets
	highValue  float64
}

// NewPDFAgent builds a PDF agent over the regulation keyword sets and the
// configured high-value threshold.
func NewPDFAgent(compliance *ComplianceSets, highValue float64) *PDFAgent {
	return &PDFAgent{compliance: compliance, highValue: highValue}
}

// Name implements Agent.
func (a *PDFAgent) Name() string { return "pdf_agent" }

// Analyze implements Agent. Extraction failure for a page is recorded in
// the analysis and skipped; it never returns an error.
func (a *PDFAgent) Analyze(ctx context.Context, sessionID string, content []byte, cls classify.Result) (*Decision, error) {
	pages, pageErrs := extractPages(content)
	text := strings.Join(pages, "\n")
	lower := strings.ToLower(text)

	an := &PDFAnalysis{
		DocumentType:   classifyDocument(lower),
		PageCount:      len(pages),
		PageErrors:     pageErrs,
		RiskIndicators: scanRiskIndicators(lower),
	}

	d := &Decision{AgentName: a.Name(), Analysis: an}
	seq := 0
	var reasons []string

	an.Regulations = a.matchRegulations(lower)
	if len(an.Regulations) > 0 {
		prio := action.PriorityMedium
		if len(an.Regulations) >= 2 {
			prio = action.PriorityCritical
		}
		d.ProposedActions = append(d.ProposedActions, action.NewRequest(sessionID, seq, action.TypeComplianceAlert, prio, map[string]interface{}{
			"regulations":   an.Regulations,
			"document_type": an.DocumentType,
		}))
		seq++
		reasons = append(reasons, fmt.Sprintf("compliance keywords for %s", strings.Join(an.Regulations, ", ")))
	}

	if an.DocumentType == "invoice" {
		an.LineItems, an.InvoiceTotal = parseInvoice(text)
		if an.InvoiceTotal > a.highValue {
			d.ProposedActions = append(d.ProposedActions, action.NewRequest(sessionID, seq, action.TypeRiskAlert, action.PriorityHigh, map[string]interface{}{
				"invoice_total": an.InvoiceTotal,
				"threshold":     a.highValue,
				"line_items":    len(an.LineItems),
			}))
			seq++
			reasons = append(reasons, fmt.Sprintf("invoice total %.2f above %.2f", an.InvoiceTotal, a.highValue))
		}
	}

	if len(reasons) == 0 {
		d.Reasoning = fmt.Sprintf("%s document, no alert trigger", an.DocumentType)
	} else {
		d.Reasoning = strings.Join(reasons, "; ")
	}

	log.Debug().Str("session_id", sessionID).Str("document_type", an.DocumentType).
		Int("pages", an.PageCount).Float64("invoice_total", an.InvoiceTotal).
		Msg("pdf_analyzed")
	return d, nil
}

// extractPages returns per-page text. Pre-extracted input is split on its
// page markers; raw PDF bytes get a best-effort string-literal scrape per
// stream object, recording pages that yield nothing.
func extractPages(content []byte) (pages []string, errs []string) {
	if bytes.HasPrefix(content, []byte("%PDF")) {
		streams := bytes.Split(content, []byte("stream"))
		pageNo := 0
		for i := 1; i < len(streams); i += 2 {
			pageNo++
			var sb strings.Builder
			for _, m := range pdfStringRe.FindAllSubmatch(streams[i], -1) {
				sb.Write(m[1])
				sb.WriteByte(' ')
			}
			if sb.Len() == 0 {
				errs = append(errs, fmt.Sprintf("page %d: no extractable text", pageNo))
				continue
			}
			pages = append(pages, sb.String())
		}
		if pageNo == 0 {
			// Malformed binary with no stream objects: scrape what we can.
			var sb strings.Builder
			for _, m := range pdfStringRe.FindAllSubmatch(content, -1) {
				sb.Write(m[1])
				sb.WriteByte(' ')
			}
			if sb.Len() > 0 {
				pages = append(pages, sb.String())
			} else {
				errs = append(errs, "page 1: no extractable text")
			}
		}
		return pages, errs
	}

	text := string(content)
	marks := pageMarkerRe.FindAllStringIndex(text, -1)
	if len(marks) == 0 {
		return []string{text}, nil
	}
	if head := strings.TrimSpace(text[:marks[0][0]]); head != "" {
		pages = append(pages, head)
	}
	for i, m := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		pages = append(pages, strings.TrimSpace(text[m[1]:end]))
	}
	return pages, nil
}

func classifyDocument(lower string) string {
	best, bestHits := "other", 0
	for _, dt := range docTypeKeywords {
		hits := 0
		for _, kw := range dt.Keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = dt.Type, hits
		}
	}
	return best
}

// parseInvoice pulls tabular line items and returns the larger of the
// summed row totals and any printed grand total.
func parseInvoice(text string) (items []LineItem, total float64) {
	var rowSum float64
	for _, m := range lineItemRe.FindAllStringSubmatch(text, -1) {
		qty, _ := strconv.Atoi(m[2])
		unit := parseMoney(m[3])
		rowTotal := parseMoney(m[4])
		items = append(items, LineItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    qty,
			UnitPrice:   unit,
			Total:       rowTotal,
		})
		rowSum += rowTotal
	}
	total = rowSum
	for _, m := range grandTotalRe.FindAllStringSubmatch(text, -1) {
		if v := parseMoney(m[1]); v > total {
			total = v
		}
	}
	return items, total
}

func (a *PDFAgent) matchRegulations(lower string) []string {
	var matched []string
	for _, reg := range a.compliance.Regulations {
		for _, kw := range reg.Keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, reg.Name)
				break
			}
		}
	}
	return matched
}

func scanRiskIndicators(lower string) map[string][]string {
	out := map[string][]string{}
	for _, cat := range []string{"financial", "legal", "security"} {
		for _, phrase := range riskIndicators[cat] {
			if strings.Contains(lower, phrase) {
				out[cat] = append(out[cat], phrase)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseMoney(s string) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v
}
