package reconcile

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/normalize"
)

// Consolidate groups a job's person rows by normalized company identity and
// emits exactly one master-data decision per group. It runs only after every
// record has reached a terminal per-record state, so the input slice is
// stable. Rows with no company identity at all are skipped; there is nothing
// to consolidate them under.
func Consolidate(jobID string, records []model.PersonRecord) []model.CompanyMdmDecision {
	groups := make(map[string][]model.PersonRecord)
	for _, rec := range records {
		key := normalize.Key(rec.EffectiveCompany(), rec.EffectiveDomain())
		if key == "" {
			zap.L().Debug("consolidate: record carries no company identity",
				zap.String("record_id", rec.ID),
				zap.Int("row", rec.RowIndex))
			continue
		}
		groups[key] = append(groups[key], rec)
	}

	decisions := make([]model.CompanyMdmDecision, 0, len(groups))
	for key, group := range groups {
		decisions = append(decisions, consolidateGroup(jobID, key, group))
	}
	sort.Slice(decisions, func(i, j int) bool { return decisions[i].Key < decisions[j].Key })
	return decisions
}

// consolidateGroup folds one group into a single decision. Merge order is
// input order ascending so the latest row wins each field; at equal order a
// Matched row sorts last and therefore wins the overlay.
func consolidateGroup(jobID, key string, group []model.PersonRecord) model.CompanyMdmDecision {
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].RowIndex != group[j].RowIndex {
			return group[i].RowIndex < group[j].RowIndex
		}
		return group[i].AugmentationStatus != model.AugmentationMatched &&
			group[j].AugmentationStatus == model.AugmentationMatched
	})

	decision := model.DecisionCompanyDataUpdate
	for _, rec := range group {
		if indicatesJobChange(rec) {
			decision = model.DecisionTrueJobChange
			break
		}
	}

	var unified model.Firmographics
	var conflicts []model.FieldConflict
	for _, rec := range group {
		before := unified
		unified.MergeFrom(contribution(rec))
		conflicts = append(conflicts, mergeConflicts(before, unified)...)
	}

	if len(conflicts) > 0 {
		zap.L().Info("consolidate: field conflicts resolved most-recent-wins",
			zap.String("key", key),
			zap.Int("conflicts", len(conflicts)))
	}

	return model.CompanyMdmDecision{
		JobID:             jobID,
		Key:               key,
		Decision:          decision,
		Unified:           unified,
		SourceRecordCount: len(group),
		Conflicts:         conflicts,
	}
}

// indicatesJobChange reports whether rec is evidence of a genuinely
// different employer: the feed matched the person, proposed a company, and
// that company normalizes to a different entity than the internal one. An
// unmatched feed never promotes a group to a job change, and a row with no
// internal company is a data fill rather than a change.
func indicatesJobChange(rec model.PersonRecord) bool {
	oldName := strings.TrimSpace(rec.CompanyInput)
	newName := strings.TrimSpace(rec.CompanyNew)
	if oldName == "" || newName == "" {
		return false
	}
	if rec.AugmentationStatus != model.AugmentationMatched {
		return false
	}
	if strings.EqualFold(oldName, newName) {
		return false
	}
	return normalize.Key(rec.CompanyInput, rec.DomainInput) !=
		normalize.Key(rec.CompanyNew, rec.DomainNew)
}

// contribution is the firmographic payload one row brings to the merge.
// Name and domain fall back to the row's effective company identity so a
// feed without firmographic columns still unifies to a named company.
func contribution(rec model.PersonRecord) model.Firmographics {
	f := rec.Firmographics
	if strings.TrimSpace(f.CompanyName) == "" {
		f.CompanyName = strings.TrimSpace(rec.EffectiveCompany())
	}
	if strings.TrimSpace(f.Domain) == "" {
		if d, ok := normalize.Domain(rec.EffectiveDomain()); ok {
			f.Domain = d
		}
	}
	return f
}

// mergeConflicts diffs a merge step: any field that held one non-empty
// value before and a different non-empty value after was overwritten.
func mergeConflicts(before, after model.Firmographics) []model.FieldConflict {
	var out []model.FieldConflict
	check := func(field, was, now string) {
		if was != "" && now != "" && was != now {
			out = append(out, model.FieldConflict{Field: field, Kept: now, Discarded: was})
		}
	}
	check("company_name", before.CompanyName, after.CompanyName)
	check("domain", before.Domain, after.Domain)
	check("industry", before.Industry, after.Industry)
	check("revenue_range", before.RevenueRange, after.RevenueRange)
	check("headquarters", before.Headquarters, after.Headquarters)
	if before.EmployeeCount > 0 && after.EmployeeCount > 0 && before.EmployeeCount != after.EmployeeCount {
		out = append(out, model.FieldConflict{
			Field:     "employee_count",
			Kept:      strconv.Itoa(after.EmployeeCount),
			Discarded: strconv.Itoa(before.EmployeeCount),
		})
	}
	return out
}
