package macro

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a macro definition from a YAML or JSON file. Missing step
// ids are filled in from their position; a missing macro id is derived from
// the name.
func LoadFile(path string) (*Macro, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read macro: %w", err)
	}
	var m Macro
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &m)
	default:
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse macro %s: %w", path, err)
	}
	for i := range m.Steps {
		if m.Steps[i].ID == "" {
			m.Steps[i].ID = fmt.Sprintf("step_%d", i+1)
		}
	}
	if m.ID == "" {
		m.ID = Slugify(m.Name)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid macro %s: %w", path, err)
	}
	return &m, nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a display name into an id-safe string.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
