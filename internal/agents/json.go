package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/HarinGuptha/FlowBit-Harin/internal/action"
	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
)

// minBaselineCount is the sample floor below which a field has no usable
// baseline and statistical scoring is skipped for it.
const minBaselineCount = 10

// fieldKind is the expected JSON type of a schema field.
type fieldKind string

const (
	kindString fieldKind = "string"
	kindNumber fieldKind = "number"
	kindObject fieldKind = "object"
	kindAny    fieldKind = "any"
)

type schemaField struct {
	Name string
	Kind fieldKind
}

type jsonSchema struct {
	Name     string
	Required []schemaField
	Optional []string
}

// knownSchemas is the fixed candidate set tried in order; declaration
// order breaks coverage ties.
var knownSchemas = []jsonSchema{
	{
		Name: "webhook",
		Required: []schemaField{
			{"event_type", kindString},
			{"timestamp", kindAny},
			{"payload", kindObject},
		},
		Optional: []string{"source", "signature"},
	},
	{
		Name: "invoice",
		Required: []schemaField{
			{"invoice_id", kindString},
			{"amount", kindNumber},
			{"currency", kindString},
		},
		Optional: []string{"vendor", "due_date", "line_items"},
	},
	{
		Name: "transaction",
		Required: []schemaField{
			{"transaction_id", kindString},
			{"amount", kindNumber},
			{"user_id", kindString},
		},
		Optional: []string{"currency", "merchant", "timestamp"},
	},
	{
		Name: "user_event",
		Required: []schemaField{
			{"user_id", kindString},
			{"event_type", kindString},
		},
		Optional: []string{"properties", "timestamp", "session_id"},
	},
}

// StatFinding is one numeric field that deviated beyond the configured
// multiple of its historical standard deviation.
type StatFinding struct {
	Field  string  `json:"field"`
	Value  float64 `json:"value"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Ratio  float64 `json:"ratio"`
}

// SecurityHit is one injection signature match inside a string value.
type SecurityHit struct {
	Field     string  `json:"field"`
	Signature string  `json:"signature"`
	Pattern   string  `json:"pattern"`
	Score     float64 `json:"score"`
}

// JSONAnalysis is the JSON agent's structured output.
type JSONAnalysis struct {
	Status           string             `json:"status"` // "ok" or "invalid_json"
	Schema           string             `json:"schema"`
	SchemaMatch      float64            `json:"schema_match"`
	ValidationErrors []string           `json:"validation_errors,omitempty"`
	NumericFields    map[string]float64 `json:"numeric_fields,omitempty"`
	StatFindings     []StatFinding      `json:"stat_findings,omitempty"`
	SecurityHits     []SecurityHit      `json:"security_hits,omitempty"`
	StatScore        float64            `json:"stat_score"`
	PatternScore     float64            `json:"pattern_score"`
	AnomalyScore     float64            `json:"anomaly_score"`
}

// JSONAgent validates payloads against the known schema set and scores
// them for statistical and injection anomalies.
type JSONAgent struct {
	sigs              *SecuritySignatures
	baselines         BaselineSource
	deviationMultiple float64
	criticalThreshold float64
}

// NewJSONAgent builds a JSON agent over the signature lists, a baseline
// source, and the operator thresholds.
func NewJSONAgent(sigs *SecuritySignatures, baselines BaselineSource, deviationMultiple, criticalThreshold float64) *JSONAgent {
	return &JSONAgent{
		sigs:              sigs,
		baselines:         baselines,
		deviationMultiple: deviationMultiple,
		criticalThreshold: criticalThreshold,
	}
}

// Name implements Agent.
func (a *JSONAgent) Name() string { return "json_agent" }

// Analyze implements Agent. A parse failure degrades to a LOG_AND_CLOSE
// proposal with status invalid_json and skips all scoring; the only
// error path is a baseline read failing against the store.
func (a *JSONAgent) Analyze(ctx context.Context, sessionID string, content []byte, cls classify.Result) (*Decision, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(content, &doc); err != nil {
		an := &JSONAnalysis{Status: "invalid_json"}
		return &Decision{
			AgentName: a.Name(),
			Analysis:  an,
			ProposedActions: []action.Request{
				action.NewRequest(sessionID, 0, action.TypeLogAndClose, action.PriorityLow, map[string]interface{}{
					"status": "invalid_json",
					"error":  err.Error(),
				}),
			},
			Reasoning: "payload failed strict parse, recorded and closed",
		}, nil
	}

	an := &JSONAnalysis{Status: "ok", NumericFields: map[string]float64{}}
	an.Schema, an.SchemaMatch, an.ValidationErrors = matchSchema(doc)

	flatten(doc, "", an.NumericFields, func(field, value string) {
		a.scanValue(an, field, value)
	})
	for _, h := range an.SecurityHits {
		if h.Score > an.PatternScore {
			an.PatternScore = h.Score
		}
	}

	if err := a.scoreStatistics(ctx, an); err != nil {
		return nil, fmt.Errorf("scoring field baselines: %w", err)
	}

	an.AnomalyScore = math.Max(an.StatScore, an.PatternScore)

	d := &Decision{AgentName: a.Name(), Analysis: an}
	switch {
	case len(an.SecurityHits) > 0:
		prio := action.PriorityHigh
		if an.AnomalyScore >= a.criticalThreshold {
			prio = action.PriorityCritical
		}
		d.ProposedActions = append(d.ProposedActions,
			a.flagAnomaly(sessionID, an, prio, "injection signature match"),
			// Injection attempts also raise a data-security risk alert.
			action.NewRequest(sessionID, 1, action.TypeRiskAlert, action.PriorityCritical, map[string]interface{}{
				"risk_type":     "data_security",
				"risk_score":    an.AnomalyScore,
				"schema":        an.Schema,
				"security_hits": len(an.SecurityHits),
			}))
		d.Reasoning = fmt.Sprintf("%d injection signature hit(s), anomaly score %.2f", len(an.SecurityHits), an.AnomalyScore)
	case len(an.StatFindings) > 0:
		prio := action.PriorityHigh
		if an.AnomalyScore >= a.criticalThreshold {
			prio = action.PriorityCritical
		}
		d.ProposedActions = append(d.ProposedActions, a.flagAnomaly(sessionID, an, prio, "statistical deviation"))
		d.Reasoning = fmt.Sprintf("%d field(s) beyond %.1fx historical deviation", len(an.StatFindings), a.deviationMultiple)
	case an.AnomalyScore >= a.criticalThreshold:
		// The combined score crossed the critical line even though no
		// single field broke its deviation multiple.
		d.ProposedActions = append(d.ProposedActions, a.flagAnomaly(sessionID, an, action.PriorityCritical, "anomaly score at critical threshold"))
		d.Reasoning = fmt.Sprintf("anomaly score %.2f at or above critical threshold %.2f", an.AnomalyScore, a.criticalThreshold)
	default:
		d.Reasoning = fmt.Sprintf("schema %s matched %.0f%%, no anomaly", an.Schema, an.SchemaMatch*100)
	}

	log.Debug().Str("session_id", sessionID).Str("schema", an.Schema).
		Float64("anomaly_score", an.AnomalyScore).Msg("json_analyzed")
	return d, nil
}

func (a *JSONAgent) flagAnomaly(sessionID string, an *JSONAnalysis, prio action.Priority, reason string) action.Request {
	return action.NewRequest(sessionID, 0, action.TypeFlagAnomaly, prio, map[string]interface{}{
		"anomaly_score": an.AnomalyScore,
		"schema":        an.Schema,
		"reason":        reason,
		"stat_findings": len(an.StatFindings),
		"security_hits": len(an.SecurityHits),
	})
}

// scoreStatistics compares each numeric field against its stored
// baseline. Fields are visited in sorted order so findings are
// deterministic across runs.
func (a *JSONAgent) scoreStatistics(ctx context.Context, an *JSONAnalysis) error {
	fields := make([]string, 0, len(an.NumericFields))
	for f := range an.NumericFields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, field := range fields {
		value := an.NumericFields[field]
		b, err := a.baselines.Baseline(ctx, field)
		if err != nil {
			return err
		}
		if b.Count < minBaselineCount {
			continue
		}
		deviation := math.Abs(value - b.Mean)
		if b.StdDev == 0 {
			// A constant history makes any drift a maximal deviation.
			if deviation > 0 {
				an.StatScore = math.Max(an.StatScore, 1)
				an.StatFindings = append(an.StatFindings, StatFinding{
					Field: field, Value: value, Mean: b.Mean, StdDev: 0, Ratio: 1,
				})
			}
			continue
		}
		ratio := deviation / (a.deviationMultiple * b.StdDev)
		score := math.Min(ratio, 1)
		if score > an.StatScore {
			an.StatScore = score
		}
		if ratio > 1 {
			an.StatFindings = append(an.StatFindings, StatFinding{
				Field: field, Value: value, Mean: b.Mean, StdDev: b.StdDev, Ratio: ratio,
			})
		}
	}
	return nil
}

func (a *JSONAgent) scanValue(an *JSONAnalysis, field, value string) {
	lower := strings.ToLower(value)
	for _, sig := range a.sigs.Signatures {
		for _, pat := range sig.Patterns {
			if strings.Contains(lower, pat) {
				an.SecurityHits = append(an.SecurityHits, SecurityHit{
					Field: field, Signature: sig.Name, Pattern: pat, Score: sig.Score,
				})
			}
		}
	}
}

// matchSchema picks the schema with the best required-field coverage.
// Type mismatches and missing fields are recorded as validation errors
// for the winner only.
func matchSchema(doc map[string]interface{}) (name string, coverage float64, errs []string) {
	name = "unknown"
	var best *jsonSchema
	for i := range knownSchemas {
		s := &knownSchemas[i]
		matched := 0
		for _, f := range s.Required {
			if v, ok := doc[f.Name]; ok && kindMatches(v, f.Kind) {
				matched++
			}
		}
		c := float64(matched) / float64(len(s.Required))
		if c > coverage {
			name, coverage, best = s.Name, c, s
		}
	}
	if best == nil {
		return name, 0, nil
	}
	for _, f := range best.Required {
		v, ok := doc[f.Name]
		if !ok {
			errs = append(errs, fmt.Sprintf("missing required field %q", f.Name))
			continue
		}
		if !kindMatches(v, f.Kind) {
			errs = append(errs, fmt.Sprintf("field %q: expected %s", f.Name, f.Kind))
		}
	}
	return name, coverage, errs
}

func kindMatches(v interface{}, k fieldKind) bool {
	switch k {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindNumber:
		_, ok := v.(float64)
		return ok
	case kindObject:
		_, ok := v.(map[string]interface{})
		return ok
	}
	return v != nil
}

// flatten walks the document depth-first, collecting numeric leaves into
// numeric (dotted paths) and feeding every string leaf to scan.
func flatten(v interface{}, path string, numeric map[string]float64, scan func(field, value string)) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(t[k], joinPath(path, k), numeric, scan)
		}
	case []interface{}:
		for i, e := range t {
			flatten(e, fmt.Sprintf("%s[%d]", path, i), numeric, scan)
		}
	case float64:
		numeric[path] = t
	case string:
		scan(path, t)
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
