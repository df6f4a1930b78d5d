package fsm

import "strings"

// cancelSentence is the exact user-visible cancellation sentence every
// cancel path emits.
const cancelSentence = "Purchase cancelled. Is there anything else I can help you with?"

// degradedModeNotice is appended to non-terminal replies while any
// tracked service is unavailable.
const degradedModeNotice = "Some advanced features are temporarily unavailable, so results may be simpler than usual."

// cancelKeywords is the fixed keyword set checked before any
// substantive parsing.
var cancelKeywords = []string{"cancel", "exit", "stop", "quit", "abort", "nevermind"}

// isCancelRequest reports whether input is a cancellation, via a
// case-insensitive substring match against cancelKeywords. The keyword
// match is authoritative; no LLM call is involved.
func isCancelRequest(input string) bool {
	lower := strings.ToLower(input)
	for _, kw := range cancelKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
