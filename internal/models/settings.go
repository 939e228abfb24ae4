package models

// CurrentSettingsVersion is the schema version written for new settings.
const CurrentSettingsVersion = 3

// GenerationSettings controls how a pal's prompt is turned into output.
// Rows written by older app versions carry a lower SchemaVersion and are
// upgraded on every read; stored rows are never bulk-migrated.
type GenerationSettings struct {
	SchemaVersion int     `json:"schema_version"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	TopP          float64 `json:"top_p"`

	// Style replaced the v1 Tone field; kept as a plain string so unknown
	// values survive round-trips.
	Style string `json:"style,omitempty"`

	// Tone is only populated when decoding v1 rows; the v1->v2 upgrade moves
	// it into Style.
	Tone string `json:"tone,omitempty"`

	// Streaming was introduced in v3 and defaults to on.
	Streaming bool `json:"streaming"`
}

// DefaultGenerationSettings returns the system defaults for the current
// schema version. Stored settings are merged over these so callers always
// see every expected key, even for older or partial rows.
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		SchemaVersion: CurrentSettingsVersion,
		Model:         "pal-chat-1",
		Temperature:   0.8,
		MaxTokens:     1024,
		TopP:          1.0,
		Streaming:     true,
	}
}

// UpgradeGenerationSettings applies the v1->v2->current migration chain to s
// and returns the result. It is idempotent: settings already at the current
// version pass through unchanged.
func UpgradeGenerationSettings(s GenerationSettings) GenerationSettings {
	if s.SchemaVersion <= 0 {
		s.SchemaVersion = 1
	}
	if s.SchemaVersion == 1 {
		// v2 renamed Tone to Style.
		if s.Style == "" && s.Tone != "" {
			s.Style = s.Tone
		}
		s.Tone = ""
		s.SchemaVersion = 2
	}
	if s.SchemaVersion == 2 {
		// v3 added Streaming, on by default for upgraded rows.
		s.Streaming = true
		s.SchemaVersion = 3
	}
	return s
}

// ResolvedGenerationSettings returns the settings callers should use for
// this pal: locally edited settings win over remote-origin ones, and the
// winner is merged over system defaults after the version upgrade chain.
func (p *Pal) ResolvedGenerationSettings() GenerationSettings {
	if p.GenerationSettings != nil {
		return MergeGenerationSettings(p.GenerationSettings)
	}
	return MergeGenerationSettings(p.RemoteSettings)
}

// MergeGenerationSettings overlays stored onto the system defaults and runs
// the version upgrade chain. A nil stored value yields plain defaults.
func MergeGenerationSettings(stored *GenerationSettings) GenerationSettings {
	merged := DefaultGenerationSettings()
	if stored == nil {
		return merged
	}
	s := UpgradeGenerationSettings(*stored)
	if s.Model != "" {
		merged.Model = s.Model
	}
	if s.Temperature != 0 {
		merged.Temperature = s.Temperature
	}
	if s.MaxTokens != 0 {
		merged.MaxTokens = s.MaxTokens
	}
	if s.TopP != 0 {
		merged.TopP = s.TopP
	}
	if s.Style != "" {
		merged.Style = s.Style
	}
	merged.Streaming = s.Streaming
	return merged
}
