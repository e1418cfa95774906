package playbook

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"hone/internal/types"
)

// Manifest is the playbook's optional YAML front-matter. Field order matches
// the sorted-keys output contract.
type Manifest struct {
	Sections []ManifestSection `yaml:"sections"`
	Version  string            `yaml:"version"`
}

// ManifestSection declares one section and its retrieval weight.
type ManifestSection struct {
	ID     string  `yaml:"id"`
	Weight float64 `yaml:"weight"`
}

// ParseManifest parses front-matter YAML. Malformed YAML is a whole-file
// parse error.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, types.Parsef("playbook front-matter: %v", err)
	}
	return &m, nil
}

// Marshal serializes the manifest with sections sorted by id. Output is
// deterministic: same manifest, same bytes.
func (m *Manifest) Marshal() ([]byte, error) {
	out := Manifest{
		Version:  m.Version,
		Sections: append([]ManifestSection(nil), m.Sections...),
	}
	sort.Slice(out.Sections, func(i, j int) bool {
		return out.Sections[i].ID < out.Sections[j].ID
	})

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// EnsureSection adds a section with the given weight if absent.
func (m *Manifest) EnsureSection(id string, weight float64) {
	for _, s := range m.Sections {
		if s.ID == id {
			return
		}
	}
	m.Sections = append(m.Sections, ManifestSection{ID: id, Weight: weight})
}
