// Package registry parses the voice-map file and resolves (language, voice)
// pairs to a model-config path and optional speaker id.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// VoiceEntry is one voice's model binding.
type VoiceEntry struct {
	Config      string `json:"config"`
	SpeakerID   *int64 `json:"speaker_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Quality     string `json:"quality,omitempty"`
}

// LanguageBinding is either a legacy single-voice entry or a rich
// default-voice-plus-voices-map entry for one language key.
type LanguageBinding struct {
	// legacy form
	legacyConfig string
	legacySpeaker *int64

	// rich form
	defaultVoice string
	voices       map[string]VoiceEntry
}

func (b LanguageBinding) isRich() bool { return b.voices != nil }

// UnknownLanguageError reports resolution against an unregistered language.
type UnknownLanguageError struct {
	Lang string
}

func (e *UnknownLanguageError) Error() string {
	return fmt.Sprintf("unknown language key: %s", e.Lang)
}

// UnknownVoiceError reports resolution against an unregistered voice for a
// known language, carrying the available ids for the caller to surface.
type UnknownVoiceError struct {
	Lang      string
	Voice     string
	Available []string
}

func (e *UnknownVoiceError) Error() string {
	return fmt.Sprintf("unknown voice %q for language %q (available: %v)", e.Voice, e.Lang, e.Available)
}

// Registry holds the parsed voice map, immutable after Load.
type Registry struct {
	bindings        map[string]LanguageBinding
	defaultLanguage string
}

// Load reads and parses the voice-map file at path. Per-voice model configs
// are not read here; resolution is lazy (see Resolve).
func Load(path, defaultLanguage string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice map %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("voice map %s is not a JSON object: %w", path, err)
	}

	bindings := make(map[string]LanguageBinding, len(raw))
	for lang, v := range raw {
		binding, err := parseBinding(lang, v)
		if err != nil {
			return nil, err
		}
		bindings[lang] = binding
	}

	return &Registry{bindings: bindings, defaultLanguage: defaultLanguage}, nil
}

func parseBinding(lang string, v json.RawMessage) (LanguageBinding, error) {
	// A bare string is always the legacy form.
	var asString string
	if err := json.Unmarshal(v, &asString); err == nil {
		return LanguageBinding{legacyConfig: asString}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err != nil {
		return LanguageBinding{}, fmt.Errorf("invalid entry for language %q: %w", lang, err)
	}

	if _, ok := obj["voices"]; ok {
		return parseRichBinding(lang, obj)
	}

	var legacy struct {
		Config         string `json:"config"`
		DefaultSpeaker *int64 `json:"default_speaker"`
	}
	if err := json.Unmarshal(v, &legacy); err != nil {
		return LanguageBinding{}, fmt.Errorf("invalid legacy entry for language %q: %w", lang, err)
	}
	if legacy.Config == "" {
		return LanguageBinding{}, fmt.Errorf("missing 'config' for language %q", lang)
	}
	return LanguageBinding{legacyConfig: legacy.Config, legacySpeaker: legacy.DefaultSpeaker}, nil
}

func parseRichBinding(lang string, obj map[string]json.RawMessage) (LanguageBinding, error) {
	var defaultVoice string
	if err := json.Unmarshal(obj["default_voice"], &defaultVoice); err != nil || defaultVoice == "" {
		return LanguageBinding{}, fmt.Errorf("missing 'default_voice' for language %q", lang)
	}

	var voicesRaw map[string]VoiceEntry
	if err := json.Unmarshal(obj["voices"], &voicesRaw); err != nil {
		return LanguageBinding{}, fmt.Errorf("missing 'voices' object for language %q: %w", lang, err)
	}
	for id, entry := range voicesRaw {
		if entry.Config == "" {
			return LanguageBinding{}, fmt.Errorf("missing 'config' for voice %q (language %q)", id, lang)
		}
	}

	return LanguageBinding{defaultVoice: defaultVoice, voices: voicesRaw}, nil
}

// ListLanguages returns the union of registered language keys, sorted ascending.
func (r *Registry) ListLanguages() []string {
	langs := make([]string, 0, len(r.bindings))
	for lang := range r.bindings {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// VoicePair is one (voice_id, VoiceEntry) result from ListVoices.
type VoicePair struct {
	ID    string
	Entry VoiceEntry
}

// ListVoices returns the rich-form voices for lang, or nil if lang has no
// rich binding (including when it only has a legacy binding).
func (r *Registry) ListVoices(lang string) []VoicePair {
	b, ok := r.bindings[lang]
	if !ok || !b.isRich() {
		return nil
	}
	pairs := make([]VoicePair, 0, len(b.voices))
	for id, entry := range b.voices {
		pairs = append(pairs, VoicePair{ID: id, Entry: entry})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })
	return pairs
}

// DetailEntry is one row of the /voices/detail response.
type DetailEntry struct {
	Key         string `json:"key"`
	Config      string `json:"config"`
	Speaker     *int64 `json:"speaker,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Quality     string `json:"quality,omitempty"`
}

// ListDetail flattens every binding into the /voices/detail shape.
func (r *Registry) ListDetail() []DetailEntry {
	out := make([]DetailEntry, 0, len(r.bindings))
	for _, lang := range r.ListLanguages() {
		b := r.bindings[lang]
		if b.isRich() {
			for _, pair := range r.ListVoices(lang) {
				out = append(out, DetailEntry{
					Key:         lang + ":" + pair.ID,
					Config:      pair.Entry.Config,
					Speaker:     pair.Entry.SpeakerID,
					DisplayName: pair.Entry.DisplayName,
					Gender:      pair.Entry.Gender,
					Quality:     pair.Entry.Quality,
				})
			}
			continue
		}
		out = append(out, DetailEntry{Key: lang, Config: b.legacyConfig, Speaker: b.legacySpeaker})
	}
	return out
}

// Resolve maps (lang, voice) to a model-config path and optional speaker id.
// An empty lang uses the registry's configured default language.
func (r *Registry) Resolve(lang, voice string) (configPath string, speakerID *int64, err error) {
	if lang == "" {
		lang = r.defaultLanguage
	}

	b, ok := r.bindings[lang]
	if !ok {
		return "", nil, &UnknownLanguageError{Lang: lang}
	}

	if !b.isRich() {
		return b.legacyConfig, b.legacySpeaker, nil
	}

	voiceID := voice
	if voiceID == "" {
		voiceID = b.defaultVoice
	}
	entry, ok := b.voices[voiceID]
	if !ok {
		available := make([]string, 0, len(b.voices))
		for id := range b.voices {
			available = append(available, id)
		}
		sort.Strings(available)
		return "", nil, &UnknownVoiceError{Lang: lang, Voice: voiceID, Available: available}
	}
	return entry.Config, entry.SpeakerID, nil
}
