package enrich

// SplitPayload partitions a payload's keys against the allowlist of schema
// columns. Known keys land in the first map; everything else merges into
// the overflow map, destined for the record's extra field, so schema drift
// never silently drops data. The split is deterministic: the same payload
// and allowlist always produce the same partition.
func SplitPayload(payload map[string]any, allowed map[string]bool) (known, overflow map[string]any) {
	known = make(map[string]any, len(payload))
	overflow = make(map[string]any)
	for k, v := range payload {
		if allowed[k] {
			known[k] = v
		} else {
			overflow[k] = v
		}
	}
	return known, overflow
}
