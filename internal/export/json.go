package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mdm-cli/internal/model"
)

// Bundle is the combined JSON export of one job: the job row plus both
// result tables.
type Bundle struct {
	Job        *model.JobRun              `json:"job,omitempty"`
	Records    []model.PersonRecord       `json:"records"`
	Decisions  []model.CompanyMdmDecision `json:"decisions"`
	ExportedAt time.Time                  `json:"exported_at"`
}

// JSON writes a bundle to outputPath, indented for human diffing.
func JSON(b Bundle, outputPath string) error {
	if b.ExportedAt.IsZero() {
		b.ExportedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal bundle")
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return eris.Wrap(err, "export: write bundle")
	}
	return nil
}

// Filename builds the conventional results filename for a job export, e.g.
// job_<id>_persons_20240131_154500.csv.
func Filename(dir, jobID, table, format string) string {
	ts := time.Now().UTC().Format("20060102_150405")
	return filepath.Join(dir, fmt.Sprintf("job_%s_%s_%s.%s", jobID, table, ts, format))
}
