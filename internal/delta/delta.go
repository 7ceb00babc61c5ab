// Package delta computes the minimal textual edit between two successive
// stream emissions so a UI can render corrections instead of re-rendering
// the full text on every update.
package delta

// Compute returns the minimal suffix by which curr differs from prev: the
// longest common prefix of prev and curr, measured in code points (not
// bytes or UTF-16 code units, so combining marks and surrogate-pair-prone
// scripts are never split mid-rune), is stripped from curr.
//
// prev empty -> curr in full. curr empty -> "".
func Compute(prev, curr string) string {
	if curr == "" {
		return ""
	}
	if prev == "" {
		return curr
	}

	prevRunes := []rune(prev)
	currRunes := []rune(curr)

	p := 0
	for p < len(prevRunes) && p < len(currRunes) && prevRunes[p] == currRunes[p] {
		p++
	}
	return string(currRunes[p:])
}
