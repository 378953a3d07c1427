// Package catalog supplies the ordered interview questions for each assessment level.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

//go:embed default.yaml
var defaultCatalog []byte

// Provider returns the ordered question list for a level.
// An empty result means the level has no questions.
type Provider interface {
	Questions(ctx context.Context, level int) ([]types.Question, error)
}

type fileFormat struct {
	Levels []struct {
		Level     int              `yaml:"level"`
		Questions []types.Question `yaml:"questions"`
	} `yaml:"levels"`
}

// Static is a read-only in-memory catalog.
type Static struct {
	levels map[int][]types.Question
}

// NewStatic builds a catalog from level -> questions. Questions are ordered by Order.
func NewStatic(levels map[int][]types.Question) *Static {
	s := &Static{levels: make(map[int][]types.Question, len(levels))}
	for level, qs := range levels {
		s.levels[level] = normalize(qs)
	}
	return s
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Static, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	levels := make(map[int][]types.Question, len(f.Levels))
	for _, l := range f.Levels {
		if l.Level < 1 {
			return nil, fmt.Errorf("catalog level must be positive, got %d", l.Level)
		}
		seen := make(map[string]bool, len(l.Questions))
		for _, q := range l.Questions {
			if q.QuestionID == "" {
				return nil, fmt.Errorf("catalog level %d has a question without id", l.Level)
			}
			if seen[q.QuestionID] {
				return nil, fmt.Errorf("catalog level %d has duplicate question id %q", l.Level, q.QuestionID)
			}
			seen[q.QuestionID] = true
		}
		levels[l.Level] = append(levels[l.Level], l.Questions...)
	}
	return NewStatic(levels), nil
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the catalog embedded in the binary.
func Default() *Static {
	s, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return s
}

// Questions returns a copy of the level's questions in order.
func (s *Static) Questions(_ context.Context, level int) ([]types.Question, error) {
	qs := s.levels[level]
	return append([]types.Question(nil), qs...), nil
}

// Levels returns the configured levels in ascending order.
func (s *Static) Levels() []int {
	out := make([]int, 0, len(s.levels))
	for l := range s.levels {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// normalize sorts by Order and fills missing orders from list position.
func normalize(qs []types.Question) []types.Question {
	out := append([]types.Question(nil), qs...)
	for i := range out {
		if out[i].Order == 0 {
			out[i].Order = i + 1
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
