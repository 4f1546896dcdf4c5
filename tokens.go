package chatrelay

// Per-message framing overhead and the priming tokens every reply starts
// with, matching GPT-family chat tokenization.
const (
	messageOverheadTokens = 4
	replyPrimingTokens    = 3
)

// CountPrompt totals the encoded length of the assembled context: each
// message's role and content plus framing overhead.
func CountPrompt(messages []Message, enc Encoding) int64 {
	var total int64
	for _, m := range messages {
		total += messageOverheadTokens
		total += clampTokens(enc.Count(m.Role))
		total += clampTokens(enc.Count(m.Content))
	}
	total += replyPrimingTokens
	return total
}

// clampTokens keeps the running counter monotonic: an encoder yielding
// nothing contributes zero, never a negative amount.
func clampTokens(n int) int64 {
	if n < 0 {
		return 0
	}
	return int64(n)
}
