package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleMap = `{
  "en_US": "/models/en.onnx",
  "de_DE": { "config": "/models/de.onnx", "default_speaker": 3 },
  "fr_FR": {
    "default_voice": "jules",
    "voices": {
      "jules": { "config": "/models/fr_jules.onnx", "speaker_id": 1, "display_name": "Jules", "gender": "male", "quality": "high" },
      "marie": { "config": "/models/fr_marie.onnx" }
    }
  }
}`

func writeMap(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "map.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write voice map: %v", err)
	}
	return path
}

func TestLoadAndListLanguages(t *testing.T) {
	path := writeMap(t, sampleMap)
	r, err := Load(path, "en_US")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	langs := r.ListLanguages()
	want := []string{"de_DE", "en_US", "fr_FR"}
	if len(langs) != len(want) {
		t.Fatalf("ListLanguages() = %v, want %v", langs, want)
	}
	for i, w := range want {
		if langs[i] != w {
			t.Errorf("ListLanguages()[%d] = %q, want %q", i, langs[i], w)
		}
	}
}

func TestResolveLegacyStringForm(t *testing.T) {
	path := writeMap(t, sampleMap)
	r, err := Load(path, "en_US")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, speaker, err := r.Resolve("en_US", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg != "/models/en.onnx" || speaker != nil {
		t.Errorf("Resolve(en_US) = (%q, %v), want (/models/en.onnx, nil)", cfg, speaker)
	}
}

func TestResolveLegacyObjectForm(t *testing.T) {
	path := writeMap(t, sampleMap)
	r, _ := Load(path, "en_US")
	cfg, speaker, err := r.Resolve("de_DE", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg != "/models/de.onnx" || speaker == nil || *speaker != 3 {
		t.Errorf("Resolve(de_DE) = (%q, %v), want (/models/de.onnx, 3)", cfg, speaker)
	}
}

func TestResolveRichFormDefaultVoice(t *testing.T) {
	path := writeMap(t, sampleMap)
	r, _ := Load(path, "en_US")
	cfg, speaker, err := r.Resolve("fr_FR", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg != "/models/fr_jules.onnx" || speaker == nil || *speaker != 1 {
		t.Errorf("Resolve(fr_FR, default) = (%q, %v), want jules binding", cfg, speaker)
	}
}

func TestResolveRichFormNamedVoice(t *testing.T) {
	path := writeMap(t, sampleMap)
	r, _ := Load(path, "en_US")
	cfg, _, err := r.Resolve("fr_FR", "marie")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg != "/models/fr_marie.onnx" {
		t.Errorf("Resolve(fr_FR, marie) = %q, want /models/fr_marie.onnx", cfg)
	}
}

func TestResolveUnknownLanguage(t *testing.T) {
	path := writeMap(t, sampleMap)
	r, _ := Load(path, "en_US")
	_, _, err := r.Resolve("ja_JP", "")
	if err == nil {
		t.Fatal("expected UnknownLanguageError")
	}
	var ule *UnknownLanguageError
	if !errors.As(err, &ule) {
		t.Errorf("expected *UnknownLanguageError, got %T", err)
	}
}

func TestResolveUnknownVoiceListsAvailable(t *testing.T) {
	path := writeMap(t, sampleMap)
	r, _ := Load(path, "en_US")
	_, _, err := r.Resolve("fr_FR", "nonexistent")
	if err == nil {
		t.Fatal("expected UnknownVoiceError")
	}
	uve, ok := err.(*UnknownVoiceError)
	if !ok {
		t.Fatalf("expected *UnknownVoiceError, got %T", err)
	}
	if len(uve.Available) != 2 {
		t.Errorf("Available = %v, want 2 entries", uve.Available)
	}
}

func TestResolveEmptyLanguageUsesDefault(t *testing.T) {
	path := writeMap(t, sampleMap)
	r, _ := Load(path, "en_US")
	cfg, _, err := r.Resolve("", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg != "/models/en.onnx" {
		t.Errorf("Resolve(\"\") = %q, want default language's config", cfg)
	}
}

func TestListDetailKeysRichEntriesByVoiceID(t *testing.T) {
	path := writeMap(t, sampleMap)
	r, _ := Load(path, "en_US")
	detail := r.ListDetail()

	found := false
	for _, d := range detail {
		if d.Key == "fr_FR:jules" {
			found = true
			if d.DisplayName != "Jules" || d.Gender != "male" {
				t.Errorf("detail for fr_FR:jules = %+v, missing expected fields", d)
			}
		}
	}
	if !found {
		t.Error("expected a detail entry keyed fr_FR:jules")
	}
}
