package emotion

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/modernreader/sensoria/pkg/types"
)

// lexicon maps each label to the keywords that vote for it. CJK entries are
// matched by substring; ASCII entries additionally get a Jaro-Winkler fuzzy
// pass over the text's tokens so close misspellings still score.
var lexicon = map[types.EmotionLabel][]string{
	types.EmotionHappy: {
		"happy", "joy", "delighted", "pleased", "cheerful", "wonderful",
		"excited", "thrilled", "enthusiastic", "eager",
		"開心", "快樂", "高興", "真好", "喜悅", "😊", "😄", "🎉",
	},
	types.EmotionSad: {
		"sad", "unhappy", "depressed", "melancholy", "sorrowful", "grief",
		"lonely", "難過", "傷心", "悲傷", "憂鬱", "😢", "😞",
	},
	types.EmotionAngry: {
		"angry", "furious", "enraged", "mad", "irritated", "rage",
		"生氣", "憤怒", "惱火", "😠", "😡",
	},
	types.EmotionFear: {
		"afraid", "scared", "terrified", "frightened", "anxious", "dread",
		"害怕", "恐懼", "驚恐", "😨",
	},
	types.EmotionSurprise: {
		"surprised", "astonished", "amazed", "unexpected", "shocked",
		"驚訝", "驚喜", "意外", "😲",
	},
	types.EmotionDisgust: {
		"disgusted", "disgusting", "gross", "revolting", "repulsed",
		"噁心", "厭惡", "🤢",
	},
}

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a token to count
// as a half-weight keyword hit.
const fuzzyThreshold = 0.93

// classifyLexicon scores text against the keyword lexicon and builds a
// deterministic reading. No hits yields neutral with intensity 0.5.
func classifyLexicon(text string, now int64) types.EmotionReading {
	lower := strings.ToLower(text)
	tokens := strings.Fields(lower)

	scores := make(map[types.EmotionLabel]float64, len(lexicon))
	var matched []string

	for _, label := range types.AllEmotions {
		kws, ok := lexicon[label]
		if !ok {
			continue
		}
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				scores[label]++
				matched = append(matched, kw)
				continue
			}
			if !isASCIIWord(kw) {
				continue
			}
			for _, tok := range tokens {
				if matchr.JaroWinkler(tok, kw, false) >= fuzzyThreshold {
					scores[label] += 0.5
					matched = append(matched, tok+"~"+kw)
					break
				}
			}
		}
	}

	if len(scores) == 0 {
		return types.EmotionReading{
			Primary:    types.EmotionNeutral,
			Intensity:  0.5,
			Features:   "no lexicon match",
			Source:     types.SourceText,
			Confidence: 0.3,
			TSUnix:     now,
		}
	}

	// Rank labels by score descending; ties resolve in AllEmotions order so
	// identical inputs always produce identical readings.
	var ranked []types.EmotionLabel
	for _, l := range types.AllEmotions {
		if scores[l] > 0 {
			ranked = append(ranked, l)
		}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && scores[ranked[j]] > scores[ranked[j-1]]; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	primary := ranked[0]
	hits := scores[primary]
	exclaims := float64(strings.Count(text, "!") + strings.Count(text, "！"))

	secondary := ranked[1:]
	if len(secondary) > 3 {
		secondary = secondary[:3]
	}

	return types.EmotionReading{
		Primary:    primary,
		Intensity:  types.ClampUnit(0.5 + 0.15*hits + 0.1*exclaims),
		Secondary:  secondary,
		Features:   "keywords: " + strings.Join(matched, ","),
		Source:     types.SourceText,
		Confidence: types.ClampUnit(0.4 + 0.15*hits),
		TSUnix:     now,
	}.Clamp()
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return s != ""
}
