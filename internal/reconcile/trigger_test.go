package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/mdm-cli/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		titleIn  string
		titleNew string
		want     TriggerMode
	}{
		{"both empty", "", "", ModeNone},
		{"only input title", "Manager", "", ModeNone},
		{"only new title", "", "Senior Manager", ModeExtrapolate},
		{"whitespace input counts as missing", "   ", "Senior Manager", ModeExtrapolate},
		{"different titles", "Manager", "Director", ModeArbitrate},
		{"identical titles", "Manager", "Manager", ModeNone},
		{"case difference only", "manager", "Manager", ModeNone},
		{"whitespace difference only", "Sr.  Manager", "Sr. Manager", ModeNone},
		{"punctuation difference still collides", "Sr Manager", "Sr. Manager", ModeArbitrate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := model.PersonRecord{TitleInput: tt.titleIn, TitleNew: tt.titleNew}
			assert.Equal(t, tt.want, Classify(rec))
		})
	}
}

func TestClassify_IgnoresAugmentationStatus(t *testing.T) {
	// The trigger only looks at the two titles; match status matters later,
	// at flag assignment.
	rec := model.PersonRecord{
		TitleInput:         "Manager",
		TitleNew:           "Director",
		AugmentationStatus: model.AugmentationNotMatched,
	}
	assert.Equal(t, ModeArbitrate, Classify(rec))
}

func TestTriggerMode_NeedsResolution(t *testing.T) {
	assert.True(t, ModeExtrapolate.NeedsResolution())
	assert.True(t, ModeArbitrate.NeedsResolution())
	assert.False(t, ModeNone.NeedsResolution())
}

func TestTitlesEqual(t *testing.T) {
	assert.True(t, titlesEqual("VP of Sales", "vp  of  sales"))
	assert.True(t, titlesEqual(" Director ", "Director"))
	assert.False(t, titlesEqual("VP of Sales", "VP of Marketing"))
	assert.False(t, titlesEqual("CTO", "C.T.O."))
}
