// Package export writes the two result tables of a reconciliation job, the
// person-level actionable table and the company-level unified table, as CSV
// files or a combined JSON bundle.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mdm-cli/internal/model"
)

// personColumns defines the ordered person-table output columns.
var personColumns = []string{
	"Row",
	"Full Name",
	"Title Input",
	"Title New",
	"Resolved Title",
	"Action Flag",
	"Company Input",
	"Company New",
	"Domain Input",
	"Domain New",
	"Augmentation Status",
	"Record Status",
	"Confidence",
	"Resolution Mode",
	"Provider",
	"Attempts",
}

// PersonCSV writes the person-level actionable table to outputPath.
func PersonCSV(records []model.PersonRecord, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "export: create person file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(personColumns); err != nil {
		return eris.Wrap(err, "export: write person header")
	}
	for _, row := range PersonRows(records) {
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "export: write person row")
		}
	}
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush person file")
	}
	return nil
}

// PersonRows maps records to person-table rows, header excluded. Row order
// follows the input slice.
func PersonRows(records []model.PersonRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for i := range records {
		rows = append(rows, buildPersonRow(&records[i]))
	}
	return rows
}

func buildPersonRow(r *model.PersonRecord) []string {
	confidence, mode, provider, attempts := "", "", "", ""
	if r.Resolution != nil {
		confidence = fmt.Sprintf("%.2f", r.Resolution.Confidence)
		mode = r.Resolution.Mode
		provider = r.Resolution.Provider
		attempts = strconv.Itoa(r.Resolution.Attempts)
	}

	return []string{
		strconv.Itoa(r.RowIndex),
		r.FullName,
		r.TitleInput,
		r.TitleNew,
		r.ResolvedTitle,
		string(r.ActionFlag),
		r.CompanyInput,
		r.CompanyNew,
		r.DomainInput,
		r.DomainNew,
		string(r.AugmentationStatus),
		string(r.Status),
		confidence,
		mode,
		provider,
		attempts,
	}
}
