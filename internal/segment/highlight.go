package segment

import (
	"sort"
	"unicode"
)

// HighlightKind classifies a highlighted range.
type HighlightKind string

const (
	HighlightQuote    HighlightKind = "quote"
	HighlightEmphasis HighlightKind = "emphasis"
	HighlightExclaim  HighlightKind = "exclaim"
	HighlightQuestion HighlightKind = "question"
	HighlightEllipsis HighlightKind = "ellipsis"
)

// Highlight marks a rune range of interest within a segment's text.
type Highlight struct {
	// StartChar and EndChar are rune offsets into the segment text.
	StartChar int `json:"start_char"`
	EndChar   int `json:"end_char"`

	Kind HighlightKind `json:"kind"`

	// Weight in [0,1]; higher means a stronger emphasis cue.
	Weight float64 `json:"weight"`
}

const (
	weightQuote    = 0.5
	weightEmphasis = 0.7
	weightExclaim  = 0.9
	weightQuestion = 0.6
	weightEllipsis = 0.4
)

// quotePairs maps opening quote runes to their closing counterpart.
var quotePairs = map[rune]rune{
	'"': '"',
	'「': '」',
	'“': '”',
}

// extractHighlights scans segment text for quotes, exclamations, questions,
// ellipses, and ASCII all-caps emphasis. Offsets are rune-based.
func extractHighlights(text string) []Highlight {
	runes := []rune(text)
	var hs []Highlight

	hs = append(hs, scanQuotes(runes)...)
	hs = append(hs, scanPunctuation(runes)...)
	hs = append(hs, scanEmphasis(runes)...)

	sort.Slice(hs, func(i, j int) bool {
		if hs[i].StartChar != hs[j].StartChar {
			return hs[i].StartChar < hs[j].StartChar
		}
		return hs[i].EndChar < hs[j].EndChar
	})
	return hs
}

// scanQuotes finds paired quotes. Unclosed openers are ignored.
func scanQuotes(runes []rune) []Highlight {
	var hs []Highlight
	for i := 0; i < len(runes); i++ {
		closer, ok := quotePairs[runes[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(runes); j++ {
			if runes[j] == closer {
				hs = append(hs, Highlight{
					StartChar: i,
					EndChar:   j + 1,
					Kind:      HighlightQuote,
					Weight:    weightQuote,
				})
				i = j
				break
			}
		}
	}
	return hs
}

// scanPunctuation finds runs of exclamation or question marks and ellipses.
// A run of identical cues becomes one highlight covering the run.
func scanPunctuation(runes []rune) []Highlight {
	var hs []Highlight
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '!', '！':
			end := punctRun(runes, i, '!', '！')
			hs = append(hs, Highlight{StartChar: i, EndChar: end, Kind: HighlightExclaim, Weight: weightExclaim})
			i = end - 1
		case '?', '？':
			end := punctRun(runes, i, '?', '？')
			hs = append(hs, Highlight{StartChar: i, EndChar: end, Kind: HighlightQuestion, Weight: weightQuestion})
			i = end - 1
		case '…':
			hs = append(hs, Highlight{StartChar: i, EndChar: i + 1, Kind: HighlightEllipsis, Weight: weightEllipsis})
		case '.':
			if i+2 < len(runes) && runes[i+1] == '.' && runes[i+2] == '.' {
				end := i + 3
				for end < len(runes) && runes[end] == '.' {
					end++
				}
				hs = append(hs, Highlight{StartChar: i, EndChar: end, Kind: HighlightEllipsis, Weight: weightEllipsis})
				i = end - 1
			}
		}
	}
	return hs
}

func punctRun(runes []rune, start int, accept ...rune) int {
	end := start
	for end < len(runes) {
		match := false
		for _, a := range accept {
			if runes[end] == a {
				match = true
				break
			}
		}
		if !match {
			break
		}
		end++
	}
	return end
}

// scanEmphasis finds ASCII all-caps words of length >= 3.
func scanEmphasis(runes []rune) []Highlight {
	var hs []Highlight
	i := 0
	for i < len(runes) {
		if !isASCIILetter(runes[i]) {
			i++
			continue
		}
		start := i
		allUpper := true
		for i < len(runes) && isASCIILetter(runes[i]) {
			if !unicode.IsUpper(runes[i]) {
				allUpper = false
			}
			i++
		}
		if allUpper && i-start >= 3 {
			hs = append(hs, Highlight{StartChar: start, EndChar: i, Kind: HighlightEmphasis, Weight: weightEmphasis})
		}
	}
	return hs
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
