package model

import "strings"

// DecisionType is the company-level master-data outcome.
type DecisionType string

const (
	// DecisionTrueJobChange: the augmentation feed shows the people now work
	// somewhere else; the company rows describe a genuinely different employer.
	DecisionTrueJobChange DecisionType = "true_job_change"
	// DecisionCompanyDataUpdate: same employer, refreshed firmographics.
	DecisionCompanyDataUpdate DecisionType = "company_data_update"
)

// Firmographics is the company attribute set carried on the augmentation
// feed and merged into the unified record.
type Firmographics struct {
	CompanyName   string `json:"company_name,omitempty"`
	Domain        string `json:"domain,omitempty"`
	Industry      string `json:"industry,omitempty"`
	EmployeeCount int    `json:"employee_count,omitempty"`
	RevenueRange  string `json:"revenue_range,omitempty"`
	Headquarters  string `json:"headquarters,omitempty"`
}

// IsZero reports whether no firmographic attribute is set.
func (f Firmographics) IsZero() bool {
	return f.CompanyName == "" && f.Domain == "" && f.Industry == "" &&
		f.EmployeeCount == 0 && f.RevenueRange == "" && f.Headquarters == ""
}

// MergeFrom overlays non-empty attributes of other onto f. Later calls win,
// so callers apply sources in ascending recency order.
func (f *Firmographics) MergeFrom(other Firmographics) {
	if strings.TrimSpace(other.CompanyName) != "" {
		f.CompanyName = other.CompanyName
	}
	if strings.TrimSpace(other.Domain) != "" {
		f.Domain = other.Domain
	}
	if strings.TrimSpace(other.Industry) != "" {
		f.Industry = other.Industry
	}
	if other.EmployeeCount > 0 {
		f.EmployeeCount = other.EmployeeCount
	}
	if strings.TrimSpace(other.RevenueRange) != "" {
		f.RevenueRange = other.RevenueRange
	}
	if strings.TrimSpace(other.Headquarters) != "" {
		f.Headquarters = other.Headquarters
	}
}

// FieldConflict records two sources disagreeing on a unified field. Logged,
// never fatal; the merge resolves it most-recent-wins.
type FieldConflict struct {
	Field     string `json:"field"`
	Kept      string `json:"kept"`
	Discarded string `json:"discarded"`
}

// CompanyMdmDecision is the consolidated outcome for one normalized company
// group.
type CompanyMdmDecision struct {
	ID                string          `json:"id"`
	JobID             string          `json:"job_id,omitempty"`
	Key               string          `json:"key"`
	Decision          DecisionType    `json:"decision"`
	Unified           Firmographics   `json:"unified"`
	SourceRecordCount int             `json:"source_record_count"`
	MdmFlag           bool            `json:"mdm_flag"`
	Conflicts         []FieldConflict `json:"conflicts,omitempty"`
}
