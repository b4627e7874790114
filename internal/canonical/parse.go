package canonical

import (
	"encoding/csv"
	"strings"

	"github.com/rotisserie/eris"
)

// Row is one parsed line of bulk input: a primary name plus any synonyms
// listed alongside it.
type Row struct {
	Name     string   `json:"name"`
	Synonyms []string `json:"synonyms,omitempty"`
}

// ParseDelimited extracts {name, synonyms} rows from pasted bulk input.
// Each non-empty line is one row; tab-separated if the line contains a tab,
// comma-separated otherwise. The first field is the name, the rest are
// synonyms. Empty fields are dropped.
func ParseDelimited(text string) []Row {
	var rows []Row
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sep := ","
		if strings.Contains(line, "\t") {
			sep = "\t"
		}
		fields := strings.Split(line, sep)
		row := Row{}
		for i, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if i == 0 || row.Name == "" {
				row.Name = f
				continue
			}
			row.Synonyms = append(row.Synonyms, f)
		}
		if row.Name != "" {
			rows = append(rows, row)
		}
	}
	return rows
}

// ParseCSV extracts rows from CSV content with a header line. The "name"
// column is required; an optional "synonyms" column holds semicolon-separated
// alternatives. Header matching is case-insensitive.
func ParseCSV(content string) ([]Row, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "canonical: read csv")
	}
	if len(records) == 0 {
		return nil, nil
	}

	nameIdx, synIdx := -1, -1
	for i, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name", "substance":
			if nameIdx < 0 {
				nameIdx = i
			}
		case "synonyms", "aliases":
			if synIdx < 0 {
				synIdx = i
			}
		}
	}
	if nameIdx < 0 {
		return nil, eris.New("canonical: csv missing name column")
	}

	var rows []Row
	for _, record := range records[1:] {
		if nameIdx >= len(record) {
			continue
		}
		row := Row{Name: strings.TrimSpace(record[nameIdx])}
		if row.Name == "" {
			continue
		}
		if synIdx >= 0 && synIdx < len(record) {
			for _, s := range strings.Split(record[synIdx], ";") {
				if s = strings.TrimSpace(s); s != "" {
					row.Synonyms = append(row.Synonyms, s)
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
