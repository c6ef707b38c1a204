package speech

import "testing"

func TestSelectVoice(t *testing.T) {
	voices := []Voice{
		{Name: "en-US-Guy", Lang: "en-US", Gender: GenderMale, Default: true},
		{Name: "es-ES-Alvaro", Lang: "es-ES", Gender: GenderMale},
		{Name: "es-ES-Elvira", Lang: "es-ES", Gender: GenderFemale},
		{Name: "Microsoft Jorge", Lang: "es_MX"},
		{Name: "Microsoft Sabina", Lang: "es_MX"},
	}

	tests := []struct {
		name   string
		voices []Voice
		lang   string
		gender Gender
		want   string // "" = nil
	}{
		{"exact locale with name hint", voices, "es-MX", GenderFemale, "Microsoft Sabina"},
		{"exact locale male hint", voices, "es-MX", GenderMale, "Microsoft Jorge"},
		{"primary language fallback", voices[:3], "es-MX", GenderFemale, "es-ES-Elvira"},
		{"first candidate without gender", voices[:3], "es-ES", GenderUnknown, "es-ES-Alvaro"},
		{"no language match", voices[:1], "es-MX", GenderFemale, ""},
		{"empty list", nil, "es-MX", GenderFemale, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectVoice(tt.voices, tt.lang, tt.gender)
			switch {
			case tt.want == "" && got != nil:
				t.Errorf("expected nil, got %q", got.Name)
			case tt.want != "" && (got == nil || got.Name != tt.want):
				t.Errorf("expected %q, got %v", tt.want, got)
			}
		})
	}
}

func TestSelectVoicePrefersDefaultInLocale(t *testing.T) {
	voices := []Voice{
		{Name: "a", Lang: "es-MX", Gender: GenderMale},
		{Name: "b", Lang: "es-MX", Gender: GenderMale, Default: true},
	}
	got := SelectVoice(voices, "es-MX", GenderFemale)
	if got == nil || got.Name != "b" {
		t.Errorf("expected default voice b, got %v", got)
	}
}

func TestMaleHintIgnoresFemale(t *testing.T) {
	if nameHints("Some Female Voice", GenderMale) {
		t.Error("female voice matched male hint")
	}
	if !nameHints("Some Female Voice", GenderFemale) {
		t.Error("female voice did not match female hint")
	}
}
