package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/HarinGuptha/FlowBit-Harin/internal/action"
	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
)

var (
	emailAddrRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe     = regexp.MustCompile(`\+?[0-9][0-9\s().\-]{7,}[0-9]`)
	amountRe    = regexp.MustCompile(`[$€£]\s?[0-9][0-9,]*(?:\.[0-9]+)?`)
	dateRe      = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)
)

// issueCategories maps a coarse support category to its trigger keywords.
// Lowest-hit categories lose; zero hits classifies as "general".
var issueCategories = map[string][]string{
	"technical": {"error", "bug", "crash", "not working", "broken", "login", "password", "outage"},
	"billing":   {"invoice", "charge", "refund", "bill", "payment", "overcharged", "double charged"},
	"service":   {"support", "representative", "wait", "response", "customer service", "on hold"},
	"product":   {"defective", "product", "item", "quality", "shipment", "delivery", "damaged"},
	"account":   {"account", "subscription", "cancel", "upgrade", "downgrade", "password reset"},
}

// EmailEntities are the patterns extracted from an email body.
type EmailEntities struct {
	Addresses   []string `json:"addresses,omitempty"`
	Phones      []string `json:"phones,omitempty"`
	Identifiers []string `json:"identifiers,omitempty"`
	Amounts     []string `json:"amounts,omitempty"`
	Dates       []string `json:"dates,omitempty"`
}

// EmailAnalysis is the email agent's structured output.
type EmailAnalysis struct {
	Headers        map[string]string `json:"headers"`
	HeadersParsed  bool              `json:"headers_parsed"`
	Entities       EmailEntities     `json:"entities"`
	Tone           string            `json:"tone"`
	ToneScore      float64           `json:"tone_score"`
	Sentiment      float64           `json:"sentiment"`
	Urgent         bool              `json:"urgent"`
	ExternalAction bool              `json:"external_action"`
	IssueCategory  string            `json:"issue_category"`
}

// EmailAgent analyzes email-format content: header parse, entity
// extraction, lexicon tone scoring, escalation decision.
type EmailAgent struct {
	lex        *ToneLexicon
	idPrefixes []string
	idRes      []*regexp.Regexp
}

// NewEmailAgent builds an email agent over a tone lexicon and the
// configured identifier prefix set.
func NewEmailAgent(lex *ToneLexicon, idPrefixes []string) *EmailAgent {
	a := &EmailAgent{lex: lex, idPrefixes: idPrefixes}
	for _, p := range idPrefixes {
		a.idRes = append(a.idRes, regexp.MustCompile(regexp.QuoteMeta(p)+`[A-Za-z0-9\-]+`))
	}
	return a
}

// Name implements Agent.
func (a *EmailAgent) Name() string { return "email_agent" }

// Analyze implements Agent. Malformed structure degrades to a headerless
// body parse; it never returns an error.
func (a *EmailAgent) Analyze(ctx context.Context, sessionID string, content []byte, cls classify.Result) (*Decision, error) {
	headers, body, parsed := splitHeaders(string(content))
	lower := strings.ToLower(body)

	an := EmailAnalysis{
		Headers:       headers,
		HeadersParsed: parsed,
		Entities:      a.extractEntities(body),
		IssueCategory: classifyIssue(lower),
	}
	an.Tone, an.ToneScore, an.Sentiment = a.scoreTone(lower)
	an.Urgent = containsAny(lower, a.lex.Urgency)
	an.ExternalAction = containsAny(lower, a.lex.ExternalAction)

	d := &Decision{AgentName: a.Name(), Analysis: &an}
	hostile := an.Tone == "angry" || an.Tone == "threatening"
	if hostile && (an.Urgent || an.Sentiment <= -0.5 || an.ExternalAction) {
		prio := action.PriorityHigh
		reason := fmt.Sprintf("%s tone with sentiment %.2f", an.Tone, an.Sentiment)
		if an.ExternalAction {
			prio = action.PriorityCritical
			reason = an.Tone + " tone with external-action threat"
		} else if an.Urgent {
			reason = an.Tone + " tone with urgency signal"
		}
		d.ProposedActions = append(d.ProposedActions, action.NewRequest(sessionID, 0, action.TypeEscalate, prio, map[string]interface{}{
			"sender":    headers["From"],
			"subject":   headers["Subject"],
			"tone":      an.Tone,
			"sentiment": an.Sentiment,
			"category":  an.IssueCategory,
			"reason":    reason,
		}))
		d.Reasoning = "escalating: " + reason
	} else {
		prio := action.PriorityLow
		if cls.BusinessIntent == classify.IntentComplaint || cls.BusinessIntent == classify.IntentFraudRisk {
			prio = action.PriorityMedium
		}
		d.ProposedActions = append(d.ProposedActions, action.NewRequest(sessionID, 0, action.TypeLogAndClose, prio, map[string]interface{}{
			"sender":   headers["From"],
			"subject":  headers["Subject"],
			"tone":     an.Tone,
			"category": an.IssueCategory,
		}))
		d.Reasoning = fmt.Sprintf("%s tone, no escalation trigger", an.Tone)
	}

	log.Debug().Str("session_id", sessionID).Str("tone", an.Tone).
		Float64("sentiment", an.Sentiment).Bool("urgent", an.Urgent).
		Msg("email_analyzed")
	return d, nil
}

// splitHeaders parses a minimal RFC822 header block ended by the first
// blank line. Content with no recognizable header block is treated as a
// bare body with empty headers.
func splitHeaders(content string) (headers map[string]string, body string, parsed bool) {
	headers = map[string]string{}
	lines := strings.Split(content, "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.ContainsAny(name, " \t") {
			// Not a header line; the block is malformed, fall back.
			return map[string]string{}, content, false
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return headers, content, false
	}
	return headers, strings.Join(lines[i:], "\n"), true
}

func (a *EmailAgent) extractEntities(body string) EmailEntities {
	e := EmailEntities{
		Addresses: dedupe(emailAddrRe.FindAllString(body, -1)),
		Amounts:   dedupe(amountRe.FindAllString(body, -1)),
		Dates:     dedupe(dateRe.FindAllString(body, -1)),
	}
	for _, m := range phoneRe.FindAllString(body, -1) {
		if countDigits(m) >= 8 {
			e.Phones = append(e.Phones, strings.TrimSpace(m))
		}
	}
	e.Phones = dedupe(e.Phones)
	for _, re := range a.idRes {
		e.Identifiers = append(e.Identifiers, re.FindAllString(body, -1)...)
	}
	e.Identifiers = dedupe(e.Identifiers)
	return e
}

// scoreTone picks the highest-weighted category; ties go to the higher
// severity. Zero hits everywhere scores as neutral.
func (a *EmailAgent) scoreTone(lower string) (tone string, score, sentiment float64) {
	tone = "neutral"
	var bestSeverity int
	var polaritySum float64
	var hits int
	for _, cat := range a.lex.Tones {
		var catScore float64
		for _, kw := range cat.Keywords {
			n := strings.Count(lower, kw.Word)
			if n == 0 {
				continue
			}
			catScore += kw.Weight * float64(n)
			polaritySum += kw.Polarity * float64(n)
			hits += n
		}
		if catScore > score || (catScore == score && catScore > 0 && cat.Severity > bestSeverity) {
			tone, score, bestSeverity = cat.Category, catScore, cat.Severity
		}
	}
	if hits > 0 {
		sentiment = polaritySum / float64(hits)
		if sentiment > 1 {
			sentiment = 1
		} else if sentiment < -1 {
			sentiment = -1
		}
	}
	return tone, score, sentiment
}

func classifyIssue(lower string) string {
	best, bestHits := "general", 0
	// Deterministic iteration for reproducible category ties.
	for _, cat := range []string{"technical", "billing", "service", "product", "account"} {
		hits := 0
		for _, kw := range issueCategories[cat] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = cat, hits
		}
	}
	return best
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
