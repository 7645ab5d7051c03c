package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// SiteOrigin is the fixed origin relative links are resolved against.
const SiteOrigin = "https://www.idealista.pt"

// Mapping translates vocabulary terms into the site's localized URL words.
type Mapping struct {
	Operations    map[string]string `yaml:"operations"`
	PropertyTypes map[string]string `yaml:"property_types"`
	Cities        map[string]string `yaml:"cities"`
}

// Vocabulary lists the searches a run covers.
type Vocabulary struct {
	Operations    []string
	PropertyTypes []string
	Cities        []string
	Mapping       Mapping
}

// DefaultVocabulary is used when the vocabulary files cannot be loaded.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Operations:    []string{"sale"},
		PropertyTypes: []string{"apartments"},
		Cities:        []string{"lisbon"},
		Mapping: Mapping{
			Operations:    map[string]string{"sale": "comprar"},
			PropertyTypes: map[string]string{"apartments": "casas"},
			Cities:        map[string]string{"lisbon": "lisboa"},
		},
	}
}

// LoadVocabulary reads operations.json, property_types.json, cities.json and
// url_mapping.json from dir. JSON is parsed with the YAML decoder, so YAML
// files with the same names work too.
func LoadVocabulary(dir string) (*Vocabulary, error) {
	v := &Vocabulary{}

	lists := []struct {
		file string
		dst  *[]string
	}{
		{"operations.json", &v.Operations},
		{"property_types.json", &v.PropertyTypes},
		{"cities.json", &v.Cities},
	}
	for _, l := range lists {
		if err := decodeFile(filepath.Join(dir, l.file), l.dst); err != nil {
			return nil, err
		}
		if len(*l.dst) == 0 {
			return nil, fmt.Errorf("config: %s: empty list", l.file)
		}
	}

	if err := decodeFile(filepath.Join(dir, "url_mapping.json"), &v.Mapping); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadVocabularyOrDefault never fails: on error it logs through warn and
// returns DefaultVocabulary.
func LoadVocabularyOrDefault(dir string, warn func(format string, args ...any)) *Vocabulary {
	v, err := LoadVocabulary(dir)
	if err != nil {
		warn("[config] Error loading vocabulary from %s: %v, using defaults", dir, err)
		return DefaultVocabulary()
	}
	return v
}

func decodeFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// SearchURL builds the list page URL for one search. Terms missing from the
// mapping are used as-is.
func (v *Vocabulary) SearchURL(operation, propertyType, city string) string {
	op := lookup(v.Mapping.Operations, operation)
	pt := lookup(v.Mapping.PropertyTypes, propertyType)
	c := lookup(v.Mapping.Cities, city)
	return fmt.Sprintf("%s/en/%s-%s/%s/", SiteOrigin, op, pt, c)
}

func lookup(m map[string]string, key string) string {
	if val, ok := m[key]; ok && val != "" {
		return val
	}
	return key
}
