// ABOUTME: Splits long answers into platform-sized chunks
// ABOUTME: Prefers line breaks, then spaces, and never cuts inside a rune

package delivery

import "strings"

// splitMessage cuts text into chunks of at most limit runes.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := breakPoint(runes[:limit])
		chunk := strings.TrimRight(string(runes[:cut]), " \n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// breakPoint picks where to cut window. Breaks in the first half are ignored
// so chunks stay reasonably full.
func breakPoint(window []rune) int {
	half := len(window) / 2
	for _, sep := range []rune{'\n', ' '} {
		for i := len(window) - 1; i > half; i-- {
			if window[i] == sep {
				return i + 1
			}
		}
	}
	return len(window)
}
