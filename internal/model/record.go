package model

import (
	"strings"
	"time"
)

// AugmentationStatus reports whether the third-party feed matched the person
// to a profile.
type AugmentationStatus string

const (
	AugmentationMatched    AugmentationStatus = "matched"
	AugmentationNotMatched AugmentationStatus = "not_matched"
	AugmentationPending    AugmentationStatus = "pending"
)

// ParseAugmentationStatus normalizes the free-form status values that show up
// in vendor exports. Unknown values degrade to pending rather than failing
// the row.
func ParseAugmentationStatus(s string) AugmentationStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "matched", "match", "true", "yes", "1":
		return AugmentationMatched
	case "not_matched", "not matched", "unmatched", "no_match", "false", "no", "0":
		return AugmentationNotMatched
	default:
		return AugmentationPending
	}
}

// ActionFlag is the per-person outcome of title reconciliation.
type ActionFlag string

const (
	ActionUpdateTitle  ActionFlag = "update_title"
	ActionReviewTitle  ActionFlag = "review_title"
	ActionKeepOriginal ActionFlag = "keep_original"
)

// RecordStatus tracks a record through the processing lifecycle.
type RecordStatus string

const (
	RecordStatusPending    RecordStatus = "pending"
	RecordStatusProcessing RecordStatus = "processing"
	RecordStatusCompleted  RecordStatus = "completed"
	RecordStatusFailed     RecordStatus = "failed"
	RecordStatusSkipped    RecordStatus = "skipped"
)

// PersonRecord is one person-level row: the internal CRM values
// (*_input) next to the augmentation feed's values (*_new), plus the
// engine-appended reconciliation outcome.
type PersonRecord struct {
	ID       string `json:"id"`
	JobID    string `json:"job_id,omitempty"`
	RowIndex int    `json:"row_index"`

	FullName           string             `json:"full_name,omitempty"`
	TitleInput         string             `json:"title_input,omitempty"`
	TitleNew           string             `json:"title_new,omitempty"`
	CompanyInput       string             `json:"company_input,omitempty"`
	CompanyNew         string             `json:"company_new,omitempty"`
	DomainInput        string             `json:"domain_input,omitempty"`
	DomainNew          string             `json:"domain_new,omitempty"`
	AugmentationStatus AugmentationStatus `json:"augmentation_status"`
	Firmographics      Firmographics      `json:"firmographics,omitempty"`

	// Engine-appended. ResolvedTitle is empty when resolution produced no
	// usable title (the row is then flagged for review).
	Status        RecordStatus      `json:"status"`
	ResolvedTitle string            `json:"resolved_title,omitempty"`
	ActionFlag    ActionFlag        `json:"action_flag,omitempty"`
	Resolution    *ResolutionResult `json:"resolution,omitempty"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

// EffectiveCompany returns the augmented company name when present, falling
// back to the internal value. Consolidation groups on this.
func (r PersonRecord) EffectiveCompany() string {
	if strings.TrimSpace(r.CompanyNew) != "" {
		return r.CompanyNew
	}
	return r.CompanyInput
}

// EffectiveDomain returns the augmented domain when present, falling back to
// the internal value.
func (r PersonRecord) EffectiveDomain() string {
	if strings.TrimSpace(r.DomainNew) != "" {
		return r.DomainNew
	}
	return r.DomainInput
}

// ResolutionResult is the append-only audit payload of one resolver call.
// A ReviewRequired result with an empty ResolvedTitle means the model (or
// the transport) could not produce a usable title. Failed is set only when
// the transport gave up after exhausting retries; a model that answers
// REVIEW_MANUAL has still answered.
type ResolutionResult struct {
	ResolvedTitle  string  `json:"resolved_title,omitempty"`
	Confidence     float64 `json:"confidence"`
	ReviewRequired bool    `json:"review_required"`
	Failed         bool    `json:"failed,omitempty"`
	RawModelOutput string  `json:"raw_model_output,omitempty"`
	Mode           string  `json:"mode,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	Attempts       int     `json:"attempts,omitempty"`
	ElapsedMS      int64   `json:"elapsed_ms,omitempty"`
	TokensIn       int     `json:"tokens_in,omitempty"`
	TokensOut      int     `json:"tokens_out,omitempty"`
}
