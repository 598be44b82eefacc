package reconcile

import "strings"

// ReviewSentinel is the literal the model returns when it cannot resolve a
// title with confidence. Parse treats it the same as an unparseable response.
const ReviewSentinel = "REVIEW_MANUAL"

const resolveSystemPrompt = `You are a B2B contact-data steward. Your job is to decide the correct, current job title for a person given data from an internal CRM and a third-party augmentation feed.
Respond with ONLY a JSON object of the form {"title": "<clean title>", "confidence": <0.0-1.0>}.
The title must be a clean, professionally formatted job title with no department suffixes, employer names, or commentary.
If the inputs are contradictory, nonsensical, or too ambiguous to resolve, respond with exactly REVIEW_MANUAL instead of JSON.
No markdown. No extra keys. No surrounding text.`

const extrapolateTemplate = `The internal CRM has no job title for this person. The augmentation feed reports a new title. Standardize it into a clean title, or answer REVIEW_MANUAL if it is not a usable job title.

Person: {{FULL_NAME}}
Company (internal): {{COMPANY_INPUT}}
Company (feed): {{COMPANY_NEW}}
Title from feed: {{TITLE_NEW}}`

const arbitrateTemplate = `The internal CRM and the augmentation feed disagree on this person's job title. Decide which title is correct and current, favoring the feed when it plausibly reflects a newer state of the world. Answer REVIEW_MANUAL if the conflict cannot be settled from the data given.

Person: {{FULL_NAME}}
Company (internal): {{COMPANY_INPUT}}
Company (feed): {{COMPANY_NEW}}
Title on record: {{TITLE_INPUT}}
Title from feed: {{TITLE_NEW}}`

// renderTemplate substitutes {{VAR}} placeholders.
func renderTemplate(tpl string, vars map[string]string) string {
	rendered := tpl
	for k, v := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+k+"}}", v)
	}
	return rendered
}

// promptVars flattens the record fields used by both templates. Empty values
// render as "(unknown)" so the model never sees dangling labels.
func promptVars(rec recordContext) map[string]string {
	return map[string]string{
		"FULL_NAME":     orUnknown(rec.FullName),
		"COMPANY_INPUT": orUnknown(rec.CompanyInput),
		"COMPANY_NEW":   orUnknown(rec.CompanyNew),
		"TITLE_INPUT":   orUnknown(rec.TitleInput),
		"TITLE_NEW":     orUnknown(rec.TitleNew),
	}
}

// recordContext is the slice of a person record the prompts need.
type recordContext struct {
	FullName     string
	TitleInput   string
	TitleNew     string
	CompanyInput string
	CompanyNew   string
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unknown)"
	}
	return s
}

// buildPrompt renders the scenario-specific user prompt.
func buildPrompt(mode TriggerMode, rec recordContext) string {
	switch mode {
	case ModeExtrapolate:
		return renderTemplate(extrapolateTemplate, promptVars(rec))
	default:
		return renderTemplate(arbitrateTemplate, promptVars(rec))
	}
}
