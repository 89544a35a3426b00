package mapping

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Vocabulary holds the word lists value-based detectors match against:
// the gazetteer of known places and the unit tokens.
type Vocabulary struct {
	Places []string `yaml:"places"`
	Units  []string `yaml:"units"`

	places map[string]struct{}
	units  map[string]struct{}
}

// DefaultVocabulary returns the embedded vocabulary.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabulary)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary: %v", err))
	}
	return v
}

// LoadVocabulary reads a YAML vocabulary file. Sections missing from the
// file keep their embedded defaults. An empty path returns the defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	custom, err := ParseVocabulary(data)
	if err != nil {
		return nil, err
	}

	defaults := DefaultVocabulary()
	if len(custom.Places) == 0 {
		custom.Places = defaults.Places
	}
	if len(custom.Units) == 0 {
		custom.Units = defaults.Units
	}
	custom.index()
	return custom, nil
}

// ParseVocabulary decodes a YAML vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	v.index()
	return &v, nil
}

func (v *Vocabulary) index() {
	v.places = toSet(v.Places)
	v.units = toSet(v.Units)
}

// IsPlace reports whether s names a known place.
func (v *Vocabulary) IsPlace(s string) bool {
	_, ok := v.places[normalizeWord(s)]
	return ok
}

// IsUnit reports whether s is a known unit token.
func (v *Vocabulary) IsUnit(s string) bool {
	_, ok := v.units[normalizeWord(s)]
	return ok
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w = normalizeWord(w); w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

func normalizeWord(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
