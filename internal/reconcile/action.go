package reconcile

import (
	"strings"

	"github.com/sells-group/mdm-cli/internal/model"
)

// AssignFlag maps a record's classification and resolution outcome to its
// action flag and the title that ships on the person-level row. res is nil
// exactly when mode is ModeNone.
//
// NotMatched augmentation downgrades UpdateTitle to ReviewTitle: an update
// sourced from a feed that never matched the person is not applied without
// a human look. Short-circuited records keep the original title either way
// since nothing new was proposed for them.
func AssignFlag(rec model.PersonRecord, mode TriggerMode, res *model.ResolutionResult) (model.ActionFlag, string) {
	if mode == ModeNone || res == nil {
		return model.ActionKeepOriginal, strings.TrimSpace(rec.TitleInput)
	}

	if res.ReviewRequired || res.ResolvedTitle == "" {
		return model.ActionReviewTitle, res.ResolvedTitle
	}

	if rec.AugmentationStatus == model.AugmentationNotMatched {
		return model.ActionReviewTitle, res.ResolvedTitle
	}

	return model.ActionUpdateTitle, res.ResolvedTitle
}
