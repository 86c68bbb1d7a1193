package agents

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/HarinGuptha/FlowBit-Harin/lexicons"
)

// ToneLexicon is the parsed tones.yaml: weighted keyword categories plus
// the urgency and external-action phrase lists used by escalation.
type ToneLexicon struct {
	Tones          []ToneCategory `yaml:"tones"`
	Urgency        []string       `yaml:"urgency"`
	ExternalAction []string       `yaml:"external_action"`
}

// ToneCategory is one weighted keyword category. Severity breaks score
// ties: threatening > angry > neutral > polite.
type ToneCategory struct {
	Category string        `yaml:"category"`
	Severity int           `yaml:"severity"`
	Keywords []ToneKeyword `yaml:"keywords"`
}

// ToneKeyword carries the category weight and the sentiment polarity of a
// single keyword or phrase.
type ToneKeyword struct {
	Word     string  `yaml:"word"`
	Weight   float64 `yaml:"weight"`
	Polarity float64 `yaml:"polarity"`
}

// DefaultToneLexicon parses the embedded tones.yaml.
func DefaultToneLexicon() (*ToneLexicon, error) {
	var lex ToneLexicon
	if err := yaml.Unmarshal(lexicons.TonesYAML(), &lex); err != nil {
		return nil, fmt.Errorf("parsing embedded tone lexicon: %w", err)
	}
	return &lex, nil
}

// ComplianceSets is the parsed compliance.yaml.
type ComplianceSets struct {
	Regulations []RegulationKeywords `yaml:"regulations"`
}

// RegulationKeywords is one regulation and its trigger keywords.
type RegulationKeywords struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// DefaultComplianceSets parses the embedded compliance.yaml.
func DefaultComplianceSets() (*ComplianceSets, error) {
	var cs ComplianceSets
	if err := yaml.Unmarshal(lexicons.ComplianceYAML(), &cs); err != nil {
		return nil, fmt.Errorf("parsing embedded compliance keywords: %w", err)
	}
	return &cs, nil
}

// SecuritySignatures is the parsed security.yaml.
type SecuritySignatures struct {
	Signatures []Signature `yaml:"signatures"`
}

// Signature is one named injection pattern family.
type Signature struct {
	Name     string   `yaml:"name"`
	Score    float64  `yaml:"score"`
	Patterns []string `yaml:"patterns"`
}

// DefaultSecuritySignatures parses the embedded security.yaml.
func DefaultSecuritySignatures() (*SecuritySignatures, error) {
	var ss SecuritySignatures
	if err := yaml.Unmarshal(lexicons.SecurityYAML(), &ss); err != nil {
		return nil, fmt.Errorf("parsing embedded security signatures: %w", err)
	}
	return &ss, nil
}
