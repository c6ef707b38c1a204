package speech

import "strings"

// femaleNameHints and maleNameHints catch platforms that do not flag
// gender but embed it (or a well-known voice name) in the voice name.
var femaleNameHints = []string{"female", "mujer", "femenina", "dalia", "paulina", "monica", "mónica", "elvira", "helena", "sabina", "lucia", "lucía"}
var maleNameHints = []string{"male", "hombre", "masculina", "jorge", "diego", "alvaro", "álvaro", "pablo", "raul", "raúl"}

// SelectVoice picks the voice for lang, preferring gender.
//
//  1. voices whose tag matches lang exactly, else whose primary language
//     matches ("es-ES" for "es-MX");
//  2. among those, one flagged with gender or hinting it in its name;
//  3. otherwise the first candidate;
//  4. otherwise nil: the caller keeps the platform default voice and
//     still sets the language tag on the utterance.
func SelectVoice(voices []Voice, lang string, gender Gender) *Voice {
	candidates := matchLang(voices, func(v Voice) bool { return normLang(v.Lang) == normLang(lang) })
	if len(candidates) == 0 {
		candidates = matchLang(voices, func(v Voice) bool { return primaryLang(v.Lang) == primaryLang(lang) })
	}
	if len(candidates) == 0 {
		return nil
	}

	if gender != GenderUnknown {
		for i := range candidates {
			if candidates[i].Gender == gender {
				return &candidates[i]
			}
		}
		for i := range candidates {
			if candidates[i].Gender == GenderUnknown && nameHints(candidates[i].Name, gender) {
				return &candidates[i]
			}
		}
	}

	for i := range candidates {
		if candidates[i].Default {
			return &candidates[i]
		}
	}
	return &candidates[0]
}

func matchLang(voices []Voice, pred func(Voice) bool) []Voice {
	var out []Voice
	for _, v := range voices {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

func nameHints(name string, gender Gender) bool {
	hints := femaleNameHints
	if gender == GenderMale {
		hints = maleNameHints
	}
	lower := strings.ToLower(name)
	// "female" contains "male"; check the opposite list first for male.
	if gender == GenderMale && strings.Contains(lower, "female") {
		return false
	}
	for _, h := range hints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}
