package chatrelay

// HeuristicCount estimates the token count of text.
// Uses the approximation: ~4 bytes per token, rounded up. It is the
// fallback when no exact encoder is available; the estimate skews
// accounting but never fails a request.
func HeuristicCount(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
