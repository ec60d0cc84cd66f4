package speech

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// sentenceRE matches a run of non-terminator characters followed by any
// terminators.
var sentenceRE = regexp.MustCompile(`[^.!?]+[.!?]*`)

// Sentence is one sentence of a text. Start and End are character (rune)
// offsets, the unit of [PlaybackEvent.CharIndex].
type Sentence struct {
	Start int
	End   int
	Text  string
}

// Contains reports whether index falls within [Start, End).
func (s Sentence) Contains(index int) bool {
	return index >= s.Start && index < s.End
}

// Sentences splits text into sentences. Text is the trimmed match; offsets
// refer to the untrimmed match so consecutive sentences tile the input.
// Whitespace-only matches are skipped.
func Sentences(text string) []Sentence {
	locs := sentenceRE.FindAllStringIndex(text, -1)
	out := make([]Sentence, 0, len(locs))
	pos, runes := 0, 0
	for _, loc := range locs {
		runes += utf8.RuneCountInString(text[pos:loc[0]])
		start := runes
		runes += utf8.RuneCountInString(text[loc[0]:loc[1]])
		pos = loc[1]

		trimmed := strings.TrimSpace(text[loc[0]:loc[1]])
		if trimmed == "" {
			continue
		}
		out = append(out, Sentence{Start: start, End: runes, Text: trimmed})
	}
	return out
}
