package resilience

// ClassifyError categorizes an error as "transient" or "permanent" for audit
// trails and retry bookkeeping.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
