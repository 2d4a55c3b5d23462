// Package mapping holds the static, versioned emotion-to-modality tables.
//
// Version 1 is the authoritative baseline: every emotion label maps to exactly
// one prosody preset, haptic pattern, scent recipe, taste profile, and AR
// overlay. Payload intensities are the table value scaled by the reading's
// intensity (floored at 0.2) and clamped back into the field's range — see
// [Scale].
package mapping

import "github.com/modernreader/sensoria/pkg/types"

// Version identifies the table revision clients can pin against.
const Version = "v1"

// Entry is the full modality mapping for one emotion label.
type Entry struct {
	Prosody types.ProsodyPreset
	Haptic  types.HapticPattern
	Scent   types.ScentRecipe
	Taste   types.TasteProfile
	AR      types.AROverlay
}

var tables = map[types.EmotionLabel]Entry{
	types.EmotionHappy: {
		Prosody: types.ProsodyPreset{Voice: "cheerful", Rate: 1.10, Pitch: 1.10, Volume: 1.00},
		Haptic: types.HapticPattern{
			Name: "gentle_pulse", Intensity: 0.70, FrequencyHz: 180, DurationMS: 1500,
			Regions: []string{"chest", "shoulders"}, Repeat: types.Repeat{Count: 1},
		},
		Scent: types.ScentRecipe{
			Name: "citrus_blend", Notes: []string{"orange", "lemon", "bergamot"},
			Intensity: 0.80, DurationSeconds: 180,
		},
		Taste: types.TasteProfile{
			Flavor: "sweet_citrus", Ingredients: []string{"orange", "honey"},
			Temperature: "chilled", Texture: "light_foam",
		},
		AR: types.AROverlay{
			Kind: "sparkles", ColorRGB: [3]int{255, 220, 100},
			Opacity: 0.70, Animation: "float_up", Particles: 50,
		},
	},
	types.EmotionSad: {
		Prosody: types.ProsodyPreset{Voice: "melancholic", Rate: 0.90, Pitch: 0.90, Volume: 0.80},
		Haptic: types.HapticPattern{
			Name: "slow_wave", Intensity: 0.50, FrequencyHz: 60, DurationMS: 3000,
			Regions: []string{"chest", "back"}, Repeat: types.Repeat{Count: 1},
		},
		Scent: types.ScentRecipe{
			Name: "chamomile_vanilla", Notes: []string{"chamomile", "vanilla"},
			Intensity: 0.60, DurationSeconds: 300,
		},
		Taste: types.TasteProfile{
			Flavor: "warm_comfort", Ingredients: []string{"chocolate", "vanilla"},
			Temperature: "warm", Texture: "smooth",
		},
		AR: types.AROverlay{
			Kind: "rain", ColorRGB: [3]int{100, 150, 200},
			Opacity: 0.50, Animation: "fall_down", Particles: 30,
		},
	},
	types.EmotionAngry: {
		Prosody: types.ProsodyPreset{Voice: "intense", Rate: 1.20, Pitch: 1.00, Volume: 1.10},
		Haptic: types.HapticPattern{
			Name: "sharp_burst", Intensity: 0.90, FrequencyHz: 200, DurationMS: 500,
			Regions: []string{"arms", "chest", "back"}, Repeat: types.Repeat{Count: 1},
		},
		Scent: types.ScentRecipe{
			Name: "peppermint_eucalyptus", Notes: []string{"peppermint", "eucalyptus"},
			Intensity: 0.50, DurationSeconds: 120,
		},
		Taste: types.TasteProfile{
			Flavor: "spicy_bold", Ingredients: []string{"chili", "dark_cacao"},
			Temperature: "hot", Texture: "dense",
		},
		AR: types.AROverlay{
			Kind: "flames", ColorRGB: [3]int{255, 50, 50},
			Opacity: 0.80, Animation: "flicker", Particles: 60,
		},
	},
	types.EmotionFear: {
		Prosody: types.ProsodyPreset{Voice: "tense", Rate: 1.05, Pitch: 1.05, Volume: 1.00},
		Haptic: types.HapticPattern{
			Name: "tremor", Intensity: 0.80, FrequencyHz: 150, DurationMS: 2000,
			Regions: []string{"spine", "shoulders"}, Repeat: types.Repeat{Count: 1},
		},
		Scent: types.ScentRecipe{
			Name: "lavender_sandalwood", Notes: []string{"lavender", "sandalwood"},
			Intensity: 0.70, DurationSeconds: 240,
		},
		Taste: types.TasteProfile{
			Flavor: "grounding_earthy", Ingredients: []string{"matcha", "oat"},
			Temperature: "warm", Texture: "creamy",
		},
		AR: types.AROverlay{
			Kind: "fog", ColorRGB: [3]int{150, 100, 200},
			Opacity: 0.60, Animation: "swirl", Particles: 40,
		},
	},
	types.EmotionSurprise: {
		Prosody: types.ProsodyPreset{Voice: "energetic", Rate: 1.15, Pitch: 1.05, Volume: 1.00},
		Haptic: types.HapticPattern{
			Name: "sudden_spike", Intensity: 1.00, FrequencyHz: 220, DurationMS: 800,
			Regions: []string{"chest", "arms"}, Repeat: types.Repeat{Count: 1},
		},
		Scent: types.ScentRecipe{
			Name: "jasmine_ginger", Notes: []string{"jasmine", "ginger"},
			Intensity: 0.90, DurationSeconds: 90,
		},
		Taste: types.TasteProfile{
			Flavor: "zesty_pop", Ingredients: []string{"lime", "ginger"},
			Temperature: "chilled", Texture: "fizzy",
		},
		AR: types.AROverlay{
			Kind: "burst", ColorRGB: [3]int{255, 200, 0},
			Opacity: 0.90, Animation: "explode", Particles: 80,
		},
	},
	types.EmotionDisgust: {
		Prosody: types.ProsodyPreset{Voice: "normal", Rate: 1.00, Pitch: 0.95, Volume: 0.95},
		Haptic: types.HapticPattern{
			Name: "recoil_wave", Intensity: 0.60, FrequencyHz: 90, DurationMS: 1200,
			Regions: []string{"stomach", "chest"}, Repeat: types.Repeat{Count: 1},
		},
		Scent: types.ScentRecipe{
			Name: "mint_pine", Notes: []string{"mint", "pine"},
			Intensity: 0.40, DurationSeconds: 150,
		},
		Taste: types.TasteProfile{
			Flavor: "cleansing_mint", Ingredients: []string{"mint", "cucumber"},
			Temperature: "cool", Texture: "crisp",
		},
		AR: types.AROverlay{
			Kind: "ripple", ColorRGB: [3]int{150, 200, 100},
			Opacity: 0.40, Animation: "wave_out", Particles: 25,
		},
	},
	types.EmotionNeutral: {
		Prosody: types.ProsodyPreset{Voice: "normal", Rate: 1.00, Pitch: 1.00, Volume: 1.00},
		Haptic: types.HapticPattern{
			Name: "subtle_tap", Intensity: 0.30, FrequencyHz: 80, DurationMS: 2000,
			Regions: []string{"chest"}, Repeat: types.Repeat{Count: 1},
		},
		Scent: types.ScentRecipe{
			Name: "subtle_woody", Notes: []string{"cedar", "light musk"},
			Intensity: 0.30, DurationSeconds: 200,
		},
		Taste: types.TasteProfile{
			Flavor: "balanced_mild", Ingredients: []string{"rice", "milk"},
			Temperature: "ambient", Texture: "soft",
		},
		AR: types.AROverlay{
			Kind: "ambient", ColorRGB: [3]int{200, 200, 200},
			Opacity: 0.30, Animation: "subtle_glow", Particles: 20,
		},
	},
}

// Lookup returns the v1 entry for a label. Unknown labels resolve to the
// neutral entry, mirroring the closed-set collapse rule.
func Lookup(label types.EmotionLabel) Entry {
	if e, ok := tables[label]; ok {
		return e
	}
	return tables[types.EmotionNeutral]
}

// PatternNames lists the predefined haptic pattern names in label order.
func PatternNames() []string {
	names := make([]string, 0, len(types.AllEmotions))
	for _, l := range types.AllEmotions {
		names = append(names, tables[l].Haptic.Name)
	}
	return names
}

// PatternByName finds the haptic pattern with the given name. The second
// return is false when no table entry uses the name.
func PatternByName(name string) (types.HapticPattern, bool) {
	for _, l := range types.AllEmotions {
		if tables[l].Haptic.Name == name {
			return tables[l].Haptic, true
		}
	}
	return types.HapticPattern{}, false
}
