package tools

// TrimMarker separates the kept head and tail of clamped output.
const TrimMarker = "\n\n... [TRIMMED] ...\n\n"

// ClampOutput bounds output to roughly max characters, keeping the first
// 60% and last 30% of the budget so both the start and end of long output
// stay visible to the model.
func ClampOutput(output string, max int) string {
	if max <= 0 || len(output) <= max {
		return output
	}
	head := int(float64(max) * 0.6)
	tail := int(float64(max) * 0.3)
	return output[:head] + TrimMarker + output[len(output)-tail:]
}
