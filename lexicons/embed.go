// Package lexicons provides the embedded default lexicon and keyword tables
// used by the classifier and the format agents. YAML files here are the
// first layer in the merge chain; operators can layer overrides on top via
// the config surface.
package lexicons

import _ "embed"

//go:embed intents.yaml
var intentsYAML []byte

//go:embed tones.yaml
var tonesYAML []byte

//go:embed compliance.yaml
var complianceYAML []byte

//go:embed security.yaml
var securityYAML []byte

// IntentsYAML returns the embedded few-shot intent example table.
func IntentsYAML() []byte { return intentsYAML }

// TonesYAML returns the embedded weighted tone lexicon.
func TonesYAML() []byte { return tonesYAML }

// ComplianceYAML returns the embedded regulation keyword sets.
func ComplianceYAML() []byte { return complianceYAML }

// SecurityYAML returns the embedded injection signature lists.
func SecurityYAML() []byte { return securityYAML }
