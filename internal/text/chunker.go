package text

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100

	// How far back from the window edge we are willing to move to find a
	// whitespace cut. Bounds the worst-case chunk length at size characters
	// while keeping cuts off the middle of words.
	boundarySeek = 200
)

// Chunk splits text into windows of at most size characters. When the right
// edge of a window would land mid-word, the cut moves back to the nearest
// whitespace within the last boundarySeek characters of the window.
// Consecutive chunks share an overlap-character boundary region so passages
// that straddle a cut survive in at least one chunk.
//
// Chunks are returned untrimmed; callers discard whatever trims to empty.
func Chunk(text string, size, overlap int) []string {
	if text == "" || size <= 0 {
		return nil
	}

	// All window arithmetic runs over runes, never bytes, so a hard cut in
	// whitespace-free text cannot split a multi-byte character.
	runes := []rune(text)

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + size

		if end < len(runes) {
			// Not at the end of the text: prefer breaking on whitespace.
			if i := lastSpace(runes[start:end]); i > 0 {
				cut := start + i
				if cut > end-boundarySeek {
					end = cut
				}
			}
		} else {
			end = len(runes)
		}

		chunks = append(chunks, string(runes[start:end]))

		if end >= len(runes) {
			break
		}

		// Guard against non-terminating advancement when a degenerate
		// overlap >= size slips past config validation: the window start
		// must always move forward.
		if next := end - overlap; next > start {
			start = next
		} else {
			start = end
		}
	}

	return chunks
}

func lastSpace(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case ' ', '\t', '\n', '\r':
			return i
		}
	}
	return -1
}
