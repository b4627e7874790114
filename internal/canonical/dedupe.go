package canonical

import "github.com/substancewiki/catalog-cli/internal/model"

// Deduplicate collapses a batch of raw names into ordered unique entries.
// Names are normalized and resolved through the synonym table before
// comparison; the first occurrence of a slug wins and keeps its original
// display casing.
func Deduplicate(names []string, synonyms *SynonymTable) []model.DeduplicatedEntry {
	seen := make(map[string]bool, len(names))
	entries := make([]model.DeduplicatedEntry, 0, len(names))

	for _, raw := range names {
		canonical := synonyms.Resolve(raw)
		if canonical == "" {
			continue
		}
		slug := Slugify(canonical)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		entries = append(entries, model.DeduplicatedEntry{
			CanonicalName: canonical,
			Slug:          slug,
			OriginalName:  DisplayName(raw),
		})
	}
	return entries
}
