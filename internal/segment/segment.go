// Package segment splits narrative text into addressable units with highlight
// metadata and cumulative playback timing.
//
// The segmenter is pure CPU and never blocks. Input is normalized to NFC
// before any offsets are computed; invalid UTF-8 is replaced with U+FFFD and
// flagged as a warning on the affected segments. Concatenating each segment's
// Text with its recorded Separator (plus the result Prefix) reproduces the
// normalized input exactly — downstream consumers rely on this to map
// highlights back onto the source.
package segment

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Strategy selects how text is cut into segments.
type Strategy string

const (
	// StrategySentence splits on terminal punctuation (. ! ? 。 ！ ？),
	// keeping the terminator with the preceding segment.
	StrategySentence Strategy = "sentence"

	// StrategyParagraph splits on runs of two or more newlines.
	StrategyParagraph Strategy = "paragraph"

	// StrategyAdaptive picks paragraph when the text has at least two
	// paragraph breaks, sentence otherwise, and sub-splits oversized chunks.
	StrategyAdaptive Strategy = "adaptive"
)

// ParseStrategy maps a raw strategy string (singular or plural form) to a
// Strategy. Unknown values fall back to adaptive, reported by ok=false.
func ParseStrategy(raw string) (Strategy, bool) {
	switch raw {
	case "sentence", "sentences":
		return StrategySentence, true
	case "paragraph", "paragraphs":
		return StrategyParagraph, true
	case "adaptive", "":
		return StrategyAdaptive, true
	}
	return StrategyAdaptive, false
}

const (
	// DefaultMaxChunkChars caps a single segment's rune length.
	DefaultMaxChunkChars = 500

	// DefaultReadingWPM is the assumed reading speed for duration estimates.
	DefaultReadingWPM = 200
)

// Segment is one addressable unit of the input text.
type Segment struct {
	// ID is stable within a session ("seg-<index>").
	ID string `json:"id"`

	// Index is dense in [0, N-1].
	Index int `json:"index"`

	// Text is the segment content, whitespace-trimmed.
	Text string `json:"text"`

	// StartChar and EndChar are rune offsets into the normalized input.
	StartChar int `json:"start_char"`
	EndChar   int `json:"end_char"`

	// Separator records the characters stripped between this segment and the
	// next, so the original text can be reconstructed.
	Separator string `json:"separator,omitempty"`

	// WordCount is the number of whitespace-separated fields.
	WordCount int `json:"word_count"`

	// EstDurationSeconds = WordCount / (reading_wpm/60).
	EstDurationSeconds float64 `json:"est_duration_seconds"`

	// StartTimeSeconds is the cumulative start offset of this segment.
	StartTimeSeconds float64 `json:"start_time_seconds"`

	Highlights []Highlight `json:"highlights,omitempty"`

	// Warnings carries non-fatal issues, e.g. invalid UTF-8 replacement.
	Warnings []string `json:"warnings,omitempty"`
}

// Result is the output of one segmentation run.
type Result struct {
	Segments []Segment `json:"segments"`

	// Prefix records characters stripped before the first segment.
	Prefix string `json:"prefix,omitempty"`

	// StrategyUsed is the strategy actually applied (relevant for adaptive).
	StrategyUsed Strategy `json:"strategy_used"`

	// TotalDurationSeconds is the sum of all segment durations.
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
}

// Reconstruct joins the segments and separators back into the normalized
// input. It is the inverse of Split for any input.
func (r Result) Reconstruct() string {
	var b strings.Builder
	b.WriteString(r.Prefix)
	for _, s := range r.Segments {
		b.WriteString(s.Text)
		b.WriteString(s.Separator)
	}
	return b.String()
}

// TotalHighlights counts highlights across all segments.
func (r Result) TotalHighlights() int {
	n := 0
	for _, s := range r.Segments {
		n += len(s.Highlights)
	}
	return n
}

// Option configures a Split call.
type Option func(*settings)

type settings struct {
	maxChunkChars int
	readingWPM    int
}

// WithMaxChunkChars overrides the maximum segment rune length. Values < 1
// are ignored.
func WithMaxChunkChars(n int) Option {
	return func(s *settings) {
		if n >= 1 {
			s.maxChunkChars = n
		}
	}
}

// WithReadingWPM overrides the words-per-minute used for duration estimates.
func WithReadingWPM(wpm int) Option {
	return func(s *settings) {
		if wpm > 0 {
			s.readingWPM = wpm
		}
	}
}

// span is a half-open rune range into the normalized input.
type span struct{ start, end int }

// Split segments text according to the strategy. It never fails: empty input
// yields an empty result, and invalid UTF-8 is replaced with U+FFFD with a
// warning attached to the segments containing the replacement.
func Split(text string, strategy Strategy, opts ...Option) Result {
	cfg := settings{maxChunkChars: DefaultMaxChunkChars, readingWPM: DefaultReadingWPM}
	for _, o := range opts {
		o(&cfg)
	}

	replaced := !utf8.ValidString(text)
	normalized := norm.NFC.String(strings.ToValidUTF8(text, "�"))
	runes := []rune(normalized)

	used := strategy
	if used == StrategyAdaptive || !knownStrategy(used) {
		if countParagraphBreaks(runes) >= 2 {
			used = StrategyParagraph
		} else {
			used = StrategySentence
		}
	}

	var spans []span
	switch used {
	case StrategyParagraph:
		spans = paragraphSpans(runes)
	default:
		spans = sentenceSpans(runes)
	}

	spans = trimSpans(runes, spans)
	spans = fitSpans(runes, spans, cfg.maxChunkChars)

	res := Result{StrategyUsed: used}
	if len(spans) == 0 {
		res.Prefix = normalized
		res.Segments = []Segment{}
		return res
	}

	res.Prefix = string(runes[:spans[0].start])
	cumulative := 0.0
	for i, sp := range spans {
		segText := string(runes[sp.start:sp.end])
		sepEnd := len(runes)
		if i+1 < len(spans) {
			sepEnd = spans[i+1].start
		}
		wc := len(strings.Fields(segText))
		dur := float64(wc) / (float64(cfg.readingWPM) / 60.0)

		seg := Segment{
			ID:                 fmt.Sprintf("seg-%d", i),
			Index:              i,
			Text:               segText,
			StartChar:          sp.start,
			EndChar:            sp.end,
			Separator:          string(runes[sp.end:sepEnd]),
			WordCount:          wc,
			EstDurationSeconds: dur,
			StartTimeSeconds:   cumulative,
			Highlights:         extractHighlights(segText),
		}
		if replaced && strings.ContainsRune(segText, '�') {
			seg.Warnings = append(seg.Warnings, "invalid UTF-8 bytes replaced with U+FFFD")
		}
		cumulative += dur
		res.Segments = append(res.Segments, seg)
	}
	res.TotalDurationSeconds = cumulative
	return res
}

func knownStrategy(s Strategy) bool {
	return s == StrategySentence || s == StrategyParagraph || s == StrategyAdaptive
}

// terminators end a sentence. The terminator stays with the preceding
// segment; consecutive terminators collapse into one boundary.
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// sentenceSpans cuts runes into contiguous spans covering the whole input.
func sentenceSpans(runes []rune) []span {
	var spans []span
	start := 0
	i := 0
	for i < len(runes) {
		if isTerminator(runes[i]) {
			for i+1 < len(runes) && isTerminator(runes[i+1]) {
				i++
			}
			spans = append(spans, span{start, i + 1})
			start = i + 1
		}
		i++
	}
	if start < len(runes) {
		spans = append(spans, span{start, len(runes)})
	}
	return spans
}

// countParagraphBreaks counts runs of two or more newlines.
func countParagraphBreaks(runes []rune) int {
	breaks := 0
	run := 0
	for _, r := range runes {
		if r == '\n' {
			run++
			continue
		}
		if run >= 2 {
			breaks++
		}
		run = 0
	}
	if run >= 2 {
		breaks++
	}
	return breaks
}

// paragraphSpans cuts runes at runs of two or more newlines. The newline run
// is left between spans and becomes separator text after trimming.
func paragraphSpans(runes []rune) []span {
	var spans []span
	start := 0
	i := 0
	for i < len(runes) {
		if runes[i] == '\n' {
			runStart := i
			for i < len(runes) && runes[i] == '\n' {
				i++
			}
			if i-runStart >= 2 {
				if runStart > start {
					spans = append(spans, span{start, runStart})
				}
				start = i
			}
			continue
		}
		i++
	}
	if start < len(runes) {
		spans = append(spans, span{start, len(runes)})
	}
	return spans
}

// trimSpans strips leading/trailing whitespace from each span and drops
// spans that end up empty. The stripped ranges are absorbed into the
// surrounding separators, preserving reconstruction.
func trimSpans(runes []rune, spans []span) []span {
	out := spans[:0]
	for _, sp := range spans {
		for sp.start < sp.end && unicode.IsSpace(runes[sp.start]) {
			sp.start++
		}
		for sp.end > sp.start && unicode.IsSpace(runes[sp.end-1]) {
			sp.end--
		}
		if sp.start < sp.end {
			out = append(out, sp)
		}
	}
	return out
}

// fitSpans enforces the max chunk length: oversized spans are sub-split by
// sentence, and anything still over is cut at the nearest whitespace before
// the limit (hard cut when no whitespace is available).
func fitSpans(runes []rune, spans []span, maxChars int) []span {
	var out []span
	for _, sp := range spans {
		if sp.end-sp.start <= maxChars {
			out = append(out, sp)
			continue
		}
		sub := sentenceSpans(runes[sp.start:sp.end])
		for i := range sub {
			sub[i].start += sp.start
			sub[i].end += sp.start
		}
		sub = trimSpans(runes, sub)
		for _, s := range sub {
			if s.end-s.start <= maxChars {
				out = append(out, s)
				continue
			}
			out = append(out, chopSpan(runes, s, maxChars)...)
		}
	}
	return out
}

// chopSpan greedily cuts sp into pieces of at most maxChars runes, preferring
// the last whitespace inside the window as the cut point.
func chopSpan(runes []rune, sp span, maxChars int) []span {
	var out []span
	start := sp.start
	for start < sp.end {
		if sp.end-start <= maxChars {
			out = append(out, span{start, sp.end})
			break
		}
		cut := start + maxChars
		ws := -1
		for i := cut; i > start; i-- {
			if unicode.IsSpace(runes[i-1]) {
				ws = i
				break
			}
		}
		if ws > start {
			cut = ws
		}
		out = append(out, span{start, cut})
		start = cut
	}
	return trimSpans(runes, out)
}
