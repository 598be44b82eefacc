package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mdm-cli/internal/model"
)

// companyColumns defines the ordered company-table output columns.
var companyColumns = []string{
	"Company Key",
	"Decision",
	"Company Name",
	"Domain",
	"Industry",
	"Employee Count",
	"Revenue Range",
	"Headquarters",
	"Source Records",
	"MDM Flag",
	"Conflicts",
}

// CompanyCSV writes the company-level unified table to outputPath.
func CompanyCSV(decisions []model.CompanyMdmDecision, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "export: create company file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(companyColumns); err != nil {
		return eris.Wrap(err, "export: write company header")
	}
	for _, row := range CompanyRows(decisions) {
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "export: write company row")
		}
	}
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush company file")
	}
	return nil
}

// CompanyRows maps decisions to company-table rows, header excluded.
func CompanyRows(decisions []model.CompanyMdmDecision) [][]string {
	rows := make([][]string, 0, len(decisions))
	for i := range decisions {
		rows = append(rows, buildCompanyRow(&decisions[i]))
	}
	return rows
}

func buildCompanyRow(d *model.CompanyMdmDecision) []string {
	employees := ""
	if d.Unified.EmployeeCount > 0 {
		employees = strconv.Itoa(d.Unified.EmployeeCount)
	}

	return []string{
		d.Key,
		string(d.Decision),
		d.Unified.CompanyName,
		d.Unified.Domain,
		d.Unified.Industry,
		employees,
		d.Unified.RevenueRange,
		d.Unified.Headquarters,
		strconv.Itoa(d.SourceRecordCount),
		strconv.FormatBool(d.MdmFlag),
		formatConflicts(d.Conflicts),
	}
}

// formatConflicts renders logged merge conflicts as one readable cell.
func formatConflicts(conflicts []model.FieldConflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		parts = append(parts, fmt.Sprintf("%s: kept %q over %q", c.Field, c.Kept, c.Discarded))
	}
	return strings.Join(parts, "; ")
}
