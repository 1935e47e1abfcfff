// Package loader reads per-state registry files into raw record batches
// using declarative source mapping tables.
package loader

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/corpwatch/mca-insights/internal/model"
	"github.com/corpwatch/mca-insights/internal/reconcile"
)

// SourceSpec describes one registry source: where its file lives, how to
// parse it, and how its columns map onto the canonical field set.
type SourceSpec struct {
	File     string                  `yaml:"file"`
	Format   string                  `yaml:"format"`   // "csv" (default) or "xlsx"
	URL      string                  `yaml:"url"`      // optional http/ftp origin for --fetch
	Encoding string                  `yaml:"encoding"` // optional, e.g. "windows-1252"
	Sheet    string                  `yaml:"sheet"`    // xlsx only
	Mapping  reconcile.ColumnMapping `yaml:"mapping"`
}

// Sources is the parsed sources.yaml: the source-priority order plus one
// spec per source tag. Priority lists tags from lowest to highest
// precedence for deduplication.
type Sources struct {
	Priority []string              `yaml:"priority"`
	Sources  map[string]SourceSpec `yaml:"sources"`
}

// LoadSources reads and validates a sources.yaml mapping table.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read %s", path)
	}

	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "loader: parse %s", path)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Sources) validate() error {
	if len(s.Priority) == 0 {
		return eris.New("loader: sources.yaml declares no priority order")
	}
	for _, tag := range s.Priority {
		spec, ok := s.Sources[tag]
		if !ok {
			return eris.Errorf("loader: priority lists %q but no source is defined for it", tag)
		}
		if spec.File == "" && spec.URL == "" {
			return eris.Errorf("loader: source %q has neither file nor url", tag)
		}
		if len(spec.Mapping.IdentifierColumns) == 0 {
			return eris.Errorf("loader: source %q declares no identifier columns", tag)
		}
		for field := range spec.Mapping.Columns {
			if _, ok := model.TypeOf(field); !ok {
				return eris.Errorf("loader: source %q maps unknown canonical field %q", tag, field)
			}
		}
	}
	return nil
}

// Spec returns the spec for a tag; ok is false for unknown tags.
func (s *Sources) Spec(tag string) (SourceSpec, bool) {
	spec, ok := s.Sources[tag]
	return spec, ok
}
