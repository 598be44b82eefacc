package ingest

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Canonical column names. Every input header is resolved to one of these
// before rows are turned into records.
const (
	colFullName     = "full_name"
	colTitleInput   = "title_input"
	colTitleNew     = "title_new"
	colCompanyInput = "company_input"
	colCompanyNew   = "company_new"
	colDomainInput  = "domain_input"
	colDomainNew    = "domain_new"
	colAugStatus    = "augmentation_status"
	colIndustry     = "industry"
	colEmployees    = "employee_count"
	colRevenue      = "revenue_range"
	colHeadquarters = "headquarters"
)

// Mapping declares which header spellings feed each canonical column.
type Mapping struct {
	Columns map[string][]string `yaml:"columns"`
}

// DefaultMapping covers the header spellings seen across CRM exports and
// vendor augmentation files. Aliases are tried in order, so the canonical
// spelling always wins over a looser one.
func DefaultMapping() *Mapping {
	return &Mapping{Columns: map[string][]string{
		colFullName:     {"full_name", "name", "contact_name", "person_name"},
		colTitleInput:   {"title_input", "title", "job_title", "current_title"},
		colTitleNew:     {"title_new", "new_title", "augmented_title", "enriched_title"},
		colCompanyInput: {"company_input", "company_name", "company", "account_name"},
		colCompanyNew:   {"company_new", "new_company", "augmented_company"},
		colDomainInput:  {"domain_input", "domain", "website"},
		colDomainNew:    {"domain_new", "new_domain", "new_website"},
		colAugStatus:    {"augmentation_status", "match_status", "matched", "enrichment_status"},
		colIndustry:     {"industry"},
		colEmployees:    {"employee_count", "employees", "headcount"},
		colRevenue:      {"revenue_range", "revenue"},
		colHeadquarters: {"headquarters", "hq", "hq_location", "location"},
	}}
}

// LoadMapping reads a YAML alias file. A column present in the file replaces
// the default alias list for that column; absent columns keep the defaults.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read mapping file %s", path)
	}

	var override Mapping
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse mapping file %s", path)
	}

	m := DefaultMapping()
	for column, aliases := range override.Columns {
		if _, ok := m.Columns[column]; !ok {
			return nil, eris.Errorf("ingest: unknown column %q in mapping file", column)
		}
		m.Columns[column] = aliases
	}
	return m, nil
}

// headerKey reduces a header cell to a comparable key: lower-cased, BOM
// stripped, runs of punctuation or whitespace collapsed to one underscore.
// "Title (New)" and "title_new" resolve to the same key.
func headerKey(s string) string {
	s = strings.TrimPrefix(s, "﻿")

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// columnIndex resolves a header row against the mapping, producing canonical
// column name -> position. The first matching alias wins; a header spelling
// that appears twice binds to its first occurrence.
func columnIndex(header []string, m *Mapping) map[string]int {
	byKey := make(map[string]int, len(header))
	for i, cell := range header {
		key := headerKey(cell)
		if key == "" {
			continue
		}
		if _, seen := byKey[key]; !seen {
			byKey[key] = i
		}
	}

	cols := make(map[string]int, len(m.Columns))
	for column, aliases := range m.Columns {
		for _, alias := range aliases {
			if i, ok := byKey[alias]; ok {
				cols[column] = i
				break
			}
		}
	}
	return cols
}
