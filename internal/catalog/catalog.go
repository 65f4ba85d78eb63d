// Package catalog holds the versioned list of questionnaire questions.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/qualifier/internal/model"
)

//go:embed default.yaml
var defaultCatalog []byte

// Catalog is an ordered, versioned set of questions. The slice order is the
// default flow order.
type Catalog struct {
	Version   string           `json:"version" yaml:"version"`
	Questions []model.Question `json:"questions" yaml:"questions"`

	index map[string]int
}

// New builds a catalog and validates it.
func New(version string, questions []model.Question) (*Catalog, error) {
	c := &Catalog{Version: version, Questions: questions}
	c.reindex()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog, "yaml")
}

// Load reads a catalog from a YAML or JSON file, chosen by extension.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog. format is "yaml", "yml" or "json".
func Parse(data []byte, format string) (*Catalog, error) {
	var c Catalog
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	c.reindex()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) reindex() {
	c.index = make(map[string]int, len(c.Questions))
	for i, q := range c.Questions {
		if _, dup := c.index[q.ID]; !dup {
			c.index[q.ID] = i
		}
	}
}

// All returns the questions in default order. Each question is a copy, so
// callers may modify the result, including its options and branch rules.
func (c *Catalog) All() []model.Question {
	out := make([]model.Question, len(c.Questions))
	for i, q := range c.Questions {
		q.Options = slices.Clone(q.Options)
		q.Branching = slices.Clone(q.Branching)
		if q.Validation != nil {
			v := *q.Validation
			q.Validation = &v
		}
		out[i] = q
	}
	return out
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.Questions)
}

// Get returns the question with the given id.
func (c *Catalog) Get(id string) (model.Question, bool) {
	i, ok := c.index[id]
	if !ok {
		return model.Question{}, false
	}
	return c.Questions[i], true
}

// Index returns the default-order position of a question, or -1.
func (c *Catalog) Index(id string) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// Has reports whether the catalog contains the question id.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}
