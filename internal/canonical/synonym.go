package canonical

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SynonymTable maps normalized alias names onto their canonical names.
// The mapping is many-to-one; a canonical name maps to itself.
type SynonymTable struct {
	byAlias map[string]string
}

type synonymFile struct {
	Synonyms []SynonymEntry `yaml:"synonyms"`
}

// SynonymEntry names one canonical form and its aliases.
type SynonymEntry struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

// NewSynonymTable builds a table from ordered canonical→aliases entries.
// When the same alias appears under two canonicals, the earlier entry wins
// and the conflict is logged.
func NewSynonymTable(entries []SynonymEntry) *SynonymTable {
	t := &SynonymTable{byAlias: make(map[string]string)}
	for _, e := range entries {
		t.add(e.Canonical, e.Aliases)
	}
	return t
}

// LoadSynonymFile reads a YAML synonym table from disk. A missing path
// yields an empty table, not an error: the synonym file is optional.
func LoadSynonymFile(path string) (*SynonymTable, error) {
	t := &SynonymTable{byAlias: make(map[string]string)}
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, eris.Wrapf(err, "canonical: read synonym file %s", path)
	}

	var f synonymFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "canonical: parse synonym file %s", path)
	}

	// File order is authoritative: earlier entries win alias conflicts.
	for _, e := range f.Synonyms {
		t.add(e.Canonical, e.Aliases)
	}
	return t, nil
}

func (t *SynonymTable) add(canonical string, aliases []string) {
	normCanonical := NormalizeName(canonical)
	if normCanonical == "" {
		return
	}
	if _, ok := t.byAlias[normCanonical]; !ok {
		t.byAlias[normCanonical] = normCanonical
	}
	for _, a := range aliases {
		normAlias := NormalizeName(a)
		if normAlias == "" {
			continue
		}
		if existing, ok := t.byAlias[normAlias]; ok && existing != normCanonical {
			zap.L().Warn("canonical: alias conflict, keeping first mapping",
				zap.String("alias", normAlias),
				zap.String("kept", existing),
				zap.String("dropped", normCanonical),
			)
			continue
		}
		t.byAlias[normAlias] = normCanonical
	}
}

// Resolve maps a normalized name through the synonym table. Unknown names
// resolve to themselves.
func (t *SynonymTable) Resolve(name string) string {
	normName := NormalizeName(name)
	if t == nil || t.byAlias == nil {
		return normName
	}
	if canonical, ok := t.byAlias[normName]; ok {
		return canonical
	}
	return normName
}

// Len reports the number of alias mappings.
func (t *SynonymTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byAlias)
}
