package segment_test

import (
	"strings"
	"testing"

	"github.com/modernreader/sensoria/internal/segment"
)

func TestSplit_ChineseSentences(t *testing.T) {
	t.Parallel()

	res := segment.Split("今天天氣真好！我很開心。", segment.StrategySentence)
	if len(res.Segments) != 2 {
		t.Fatalf("segments: got %d, want 2", len(res.Segments))
	}
	if res.Segments[0].Text != "今天天氣真好！" {
		t.Errorf("segment 0: got %q", res.Segments[0].Text)
	}
	if res.Segments[1].Text != "我很開心。" {
		t.Errorf("segment 1: got %q", res.Segments[1].Text)
	}

	var exclaim bool
	for _, h := range res.Segments[0].Highlights {
		if h.Kind == segment.HighlightExclaim {
			exclaim = true
			if h.Weight != 0.9 {
				t.Errorf("exclaim weight: got %v, want 0.9", h.Weight)
			}
		}
	}
	if !exclaim {
		t.Error("segment 0 should carry an exclaim highlight")
	}
}

func TestSplit_Paragraphs(t *testing.T) {
	t.Parallel()

	res := segment.Split("Para 1.\n\nPara 2.\n\nPara 3.", segment.StrategyParagraph)
	if len(res.Segments) != 3 {
		t.Fatalf("segments: got %d, want 3", len(res.Segments))
	}
	for _, s := range res.Segments {
		if s.WordCount < 1 {
			t.Errorf("segment %d word_count: got %d, want >= 1", s.Index, s.WordCount)
		}
	}
}

func TestSplit_AdaptivePicksParagraphOnBreaks(t *testing.T) {
	t.Parallel()

	res := segment.Split("One.\n\nTwo.\n\nThree.", segment.StrategyAdaptive)
	if res.StrategyUsed != segment.StrategyParagraph {
		t.Errorf("strategy_used: got %q, want %q", res.StrategyUsed, segment.StrategyParagraph)
	}

	res = segment.Split("One. Two. Three.", segment.StrategyAdaptive)
	if res.StrategyUsed != segment.StrategySentence {
		t.Errorf("strategy_used: got %q, want %q", res.StrategyUsed, segment.StrategySentence)
	}
}

func TestSplit_Reconstruction(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		"Hello world. How are you? Fine!",
		"今天天氣真好！我很開心。",
		"  leading spaces. Trailing too.  ",
		"Para one.\n\nPara two has more words in it.\n\n\nPara three.",
		"No terminator at all",
		"!!!???",
		"Multiple!! terminators?! collapse.",
	}
	strategies := []segment.Strategy{
		segment.StrategySentence, segment.StrategyParagraph, segment.StrategyAdaptive,
	}
	for _, in := range inputs {
		for _, st := range strategies {
			res := segment.Split(in, st)
			if got := res.Reconstruct(); got != in {
				t.Errorf("strategy %s: reconstruct mismatch\n in: %q\nout: %q", st, in, got)
			}
		}
	}
}

func TestSplit_IndicesDense(t *testing.T) {
	t.Parallel()

	res := segment.Split("A. B. C. D. E.", segment.StrategySentence)
	for i, s := range res.Segments {
		if s.Index != i {
			t.Errorf("index: got %d at position %d", s.Index, i)
		}
	}
	prev := -1
	for _, s := range res.Segments {
		if s.StartChar <= prev {
			t.Errorf("start_char not strictly increasing: %d after %d", s.StartChar, prev)
		}
		prev = s.StartChar
	}
}

func TestSplit_MaxChunkOne(t *testing.T) {
	t.Parallel()

	in := "abc def ghi"
	res := segment.Split(in, segment.StrategySentence, segment.WithMaxChunkChars(1))
	for _, s := range res.Segments {
		if n := len([]rune(s.Text)); n > 1 {
			t.Errorf("segment %d length: got %d, want <= 1", s.Index, n)
		}
	}
	if got := res.Reconstruct(); got != in {
		t.Errorf("reconstruct: got %q, want %q", got, in)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	t.Parallel()

	res := segment.Split("", segment.StrategyAdaptive)
	if len(res.Segments) != 0 {
		t.Errorf("segments: got %d, want 0", len(res.Segments))
	}
}

func TestSplit_InvalidUTF8Warns(t *testing.T) {
	t.Parallel()

	in := "broken" + string([]byte{0xff, 0xfe}) + " bytes."
	res := segment.Split(in, segment.StrategySentence)
	if len(res.Segments) == 0 {
		t.Fatal("expected at least one segment")
	}
	var warned bool
	for _, s := range res.Segments {
		if len(s.Warnings) > 0 {
			warned = true
		}
		if strings.Contains(s.Text, "\xff") {
			t.Error("raw invalid bytes leaked into segment text")
		}
	}
	if !warned {
		t.Error("expected a warning on the segment containing U+FFFD")
	}
}

func TestSplit_Durations(t *testing.T) {
	t.Parallel()

	res := segment.Split("one two three four.", segment.StrategySentence)
	if len(res.Segments) != 1 {
		t.Fatalf("segments: got %d, want 1", len(res.Segments))
	}
	want := 4.0 / (200.0 / 60.0)
	if got := res.Segments[0].EstDurationSeconds; got != want {
		t.Errorf("est_duration: got %v, want %v", got, want)
	}

	res = segment.Split("one two. three four.", segment.StrategySentence, segment.WithReadingWPM(100))
	if res.Segments[1].StartTimeSeconds != res.Segments[0].EstDurationSeconds {
		t.Errorf("cumulative start: got %v, want %v",
			res.Segments[1].StartTimeSeconds, res.Segments[0].EstDurationSeconds)
	}
}

func TestExtractHighlights_Kinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		text   string
		kind   segment.HighlightKind
		weight float64
	}{
		{"ascii quote", `she said "hello" softly`, segment.HighlightQuote, 0.5},
		{"cjk quote", "他說「你好」然後走了", segment.HighlightQuote, 0.5},
		{"exclaim", "stop right there!", segment.HighlightExclaim, 0.9},
		{"question", "are you sure?", segment.HighlightQuestion, 0.6},
		{"ellipsis unicode", "and then… nothing", segment.HighlightEllipsis, 0.4},
		{"ellipsis ascii", "wait... what", segment.HighlightEllipsis, 0.4},
		{"emphasis", "this is VERY important", segment.HighlightEmphasis, 0.7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := segment.Split(tc.text, segment.StrategySentence)
			found := false
			for _, s := range res.Segments {
				for _, h := range s.Highlights {
					if h.Kind == tc.kind {
						found = true
						if h.Weight != tc.weight {
							t.Errorf("weight: got %v, want %v", h.Weight, tc.weight)
						}
					}
				}
			}
			if !found {
				t.Errorf("no %s highlight found in %q", tc.kind, tc.text)
			}
		})
	}
}

func TestExtractHighlights_ShortCapsIgnored(t *testing.T) {
	t.Parallel()

	res := segment.Split("AB is too short, ABC is not", segment.StrategySentence)
	count := 0
	for _, h := range res.Segments[0].Highlights {
		if h.Kind == segment.HighlightEmphasis {
			count++
		}
	}
	if count != 1 {
		t.Errorf("emphasis count: got %d, want 1 (only ABC)", count)
	}
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want segment.Strategy
		ok   bool
	}{
		{"sentence", segment.StrategySentence, true},
		{"sentences", segment.StrategySentence, true},
		{"paragraph", segment.StrategyParagraph, true},
		{"paragraphs", segment.StrategyParagraph, true},
		{"adaptive", segment.StrategyAdaptive, true},
		{"", segment.StrategyAdaptive, true},
		{"bogus", segment.StrategyAdaptive, false},
	}
	for _, tc := range cases {
		got, ok := segment.ParseStrategy(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseStrategy(%q): got (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
