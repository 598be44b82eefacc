// Package ingest reads person rows from CSV, TSV, and XLSX uploads into
// PersonRecord values ready for reconciliation. Input headers are matched
// against a configurable alias mapping, so the same loader handles both raw
// CRM exports and vendor augmentation files.
package ingest

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mdm-cli/internal/model"
)

// Options tunes how an input file is read. The zero value is correct for a
// comma-delimited CSV with the default header mapping.
type Options struct {
	Mapping    *Mapping // nil = DefaultMapping
	Delimiter  rune     // CSV only; 0 = ',' (tab for .tsv files)
	SheetName  string   // XLSX only; overrides SheetIndex when set
	SheetIndex int      // XLSX only; default first sheet
}

func (o Options) mapping() *Mapping {
	if o.Mapping != nil {
		return o.Mapping
	}
	return DefaultMapping()
}

// ReadFile loads person records from path, dispatching on the file
// extension. Row order in the file is preserved and stamped as RowIndex.
func ReadFile(ctx context.Context, path string, opts Options) ([]model.PersonRecord, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv":
		if ext == ".tsv" && opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
		return readCSVFile(ctx, path, opts)
	case ".xlsx":
		return ReadXLSX(path, opts)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", ext)
	}
}

// recordBuilder accumulates records from data rows once the header row has
// been resolved.
type recordBuilder struct {
	cols    map[string]int
	rowNum  int
	records []model.PersonRecord
}

func newRecordBuilder(header []string, m *Mapping) (*recordBuilder, error) {
	cols := columnIndex(header, m)
	if len(cols) == 0 {
		return nil, eris.Errorf("ingest: no recognized columns in header %v", header)
	}
	return &recordBuilder{cols: cols}, nil
}

// add converts one data row. Rows with no company identity at all are
// dropped with a warning; RowIndex still counts them so surviving records
// keep their position in the source file.
func (b *recordBuilder) add(row []string) {
	b.rowNum++

	rec, ok := b.rowToRecord(row)
	if !ok {
		zap.L().Warn("ingest: skipping row without company identity", zap.Int("row", b.rowNum))
		return
	}
	b.records = append(b.records, rec)
}

func (b *recordBuilder) rowToRecord(row []string) (model.PersonRecord, bool) {
	get := func(column string) string {
		i, ok := b.cols[column]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := model.PersonRecord{
		RowIndex:           b.rowNum,
		FullName:           get(colFullName),
		TitleInput:         get(colTitleInput),
		TitleNew:           get(colTitleNew),
		CompanyInput:       get(colCompanyInput),
		CompanyNew:         get(colCompanyNew),
		DomainInput:        get(colDomainInput),
		DomainNew:          get(colDomainNew),
		AugmentationStatus: model.ParseAugmentationStatus(get(colAugStatus)),
		Firmographics: model.Firmographics{
			Industry:      get(colIndustry),
			EmployeeCount: parseEmployeeCount(get(colEmployees)),
			RevenueRange:  get(colRevenue),
			Headquarters:  get(colHeadquarters),
		},
		Status: model.RecordStatusPending,
	}

	if rec.CompanyInput == "" && rec.CompanyNew == "" && rec.DomainInput == "" && rec.DomainNew == "" {
		return model.PersonRecord{}, false
	}
	return rec, true
}

// parseEmployeeCount tolerates thousands separators; anything else
// non-numeric reads as unknown.
func parseEmployeeCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
