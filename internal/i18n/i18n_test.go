package i18n

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]Lang{
		"it":      LangItalian,
		"en":      LangEnglish,
		"":        LangEnglish,
		"fr":      LangEnglish,
		"klingon": LangEnglish,
	}
	for tag, want := range cases {
		if got := Normalize(tag); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", tag, got, want)
		}
	}
}

func TestMarkerKeyword(t *testing.T) {
	if got := MarkerKeyword(LangItalian); got != "AZIONE_PROPOSTA" {
		t.Errorf("MarkerKeyword(it) = %q", got)
	}
	if got := MarkerKeyword(LangEnglish); got != "ACTION_PROPOSED" {
		t.Errorf("MarkerKeyword(en) = %q", got)
	}
}

func TestTFallsBackToEnglish(t *testing.T) {
	// Both locales carry every key, so fall through a bogus locale.
	if got := T(Lang("de"), "not_found"); got != catalog[LangEnglish]["not_found"] {
		t.Errorf("T(de, not_found) = %q, want English fallback", got)
	}
	if got := T(LangEnglish, "no_such_key"); got != "no_such_key" {
		t.Errorf("T(unknown key) = %q, want key echo", got)
	}
}

func TestTFormatting(t *testing.T) {
	got := T(LangItalian, "task_created", "Compiti")
	if got != `Attività "Compiti" creata.` {
		t.Errorf("T() = %q", got)
	}
}

func TestCatalogParity(t *testing.T) {
	// Every English key must exist in Italian and vice versa.
	for key := range catalog[LangEnglish] {
		if _, ok := catalog[LangItalian][key]; !ok {
			t.Errorf("key %q missing from Italian catalog", key)
		}
	}
	for key := range catalog[LangItalian] {
		if _, ok := catalog[LangEnglish][key]; !ok {
			t.Errorf("key %q missing from English catalog", key)
		}
	}
}
