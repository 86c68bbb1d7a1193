package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/HarinGuptha/FlowBit-Harin/lexicons"
)

// IntentFile is the top-level YAML structure for an intent lexicon file.
type IntentFile struct {
	Intents []IntentExamples `yaml:"intents"`
}

// IntentExamples holds the labeled example phrases for one intent. The
// order intents appear in the file is the tie-break order at scoring time.
type IntentExamples struct {
	Intent   Intent    `yaml:"intent"`
	Examples []Example `yaml:"examples"`
}

// Example is a single labeled phrase with an optional weight (default 1.0).
type Example struct {
	Phrase string  `yaml:"phrase"`
	Weight float64 `yaml:"weight,omitempty"`
}

// ParseIntentFile parses intent lexicon YAML bytes.
func ParseIntentFile(data []byte) (*IntentFile, error) {
	var f IntentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing intent YAML: %w", err)
	}
	return &f, nil
}

// LoadIntentFile reads and parses an intent lexicon file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing global override as a no-op.
func LoadIntentFile(path string) (*IntentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading intent file %s: %w", path, err)
	}
	return ParseIntentFile(data)
}

// DefaultIntents returns the built-in intent table parsed from the embedded
// intents.yaml. This is the first layer in the merge chain.
func DefaultIntents() ([]IntentExamples, error) {
	f, err := ParseIntentFile(lexicons.IntentsYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded intent table: %w", err)
	}
	return f.Intents, nil
}

// MergeIntents overlays later layers on earlier ones by intent name. An
// override replaces the whole example list for that intent; new intents are
// appended, preserving the base declaration (tie-break) order for the rest.
func MergeIntents(layers ...[]IntentExamples) []IntentExamples {
	index := make(map[Intent]int)
	var merged []IntentExamples

	for _, layer := range layers {
		for _, ie := range layer {
			if idx, exists := index[ie.Intent]; exists {
				merged[idx] = ie
			} else {
				index[ie.Intent] = len(merged)
				merged = append(merged, ie)
			}
		}
	}

	return merged
}
