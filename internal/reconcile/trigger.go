// Package reconcile implements the resolution and consolidation engine:
// trigger classification, the retrying LLM resolution call, action-flag
// assignment, per-company consolidation, and the batch orchestrator that
// drives them.
package reconcile

import (
	"strings"

	"github.com/sells-group/mdm-cli/internal/model"
)

// TriggerMode selects the resolution scenario for a record.
type TriggerMode string

const (
	// ModeExtrapolate: the internal record has no title and the
	// augmentation feed supplies one.
	ModeExtrapolate TriggerMode = "extrapolate"
	// ModeArbitrate: the internal title and the feed title collide.
	ModeArbitrate TriggerMode = "arbitrate"
	// ModeNone: nothing to resolve; the record keeps its original title.
	ModeNone TriggerMode = "none"
)

// NeedsResolution reports whether the mode requires a resolver call.
func (m TriggerMode) NeedsResolution() bool {
	return m == ModeExtrapolate || m == ModeArbitrate
}

// Classify assigns exactly one trigger mode to a record. This is the sole
// gate on resolver calls, so every record must land on exactly one mode and
// the comparison must stay cheap.
func Classify(rec model.PersonRecord) TriggerMode {
	titleIn := strings.TrimSpace(rec.TitleInput)
	titleNew := strings.TrimSpace(rec.TitleNew)

	switch {
	case titleIn == "" && titleNew != "":
		return ModeExtrapolate
	case titleIn != "" && titleNew != "" && !titlesEqual(titleIn, titleNew):
		return ModeArbitrate
	default:
		return ModeNone
	}
}

// titlesEqual compares titles ignoring case and whitespace runs, so that
// "Sr. Manager" and "sr.  manager" do not trigger an arbitration call.
func titlesEqual(a, b string) bool {
	return canonTitle(a) == canonTitle(b)
}

func canonTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
