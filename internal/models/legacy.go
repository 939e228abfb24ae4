package models

import "encoding/json"

// Legacy pal types as stored by the old flat-file format. The legacy blob is
// a single JSON object holding an array of loosely typed records; each record
// is one of three shapes sharing a base, discriminated by the "type" tag.
const (
	LegacyTypeAssistant = "assistant"
	LegacyTypeImage     = "image"
	LegacyTypeVideo     = "video"
)

// LegacyBlob is the top-level shape of the legacy storage file.
type LegacyBlob struct {
	Version int            `json:"version,omitempty"`
	Pals    []LegacyRecord `json:"pals"`
}

// LegacyRecord is one record of the legacy array. Variant-specific fields
// are all present on the one struct because the legacy format never
// separated them; transforms switch on Type only, never on field presence.
type LegacyRecord struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Prompt      string `json:"prompt,omitempty"`

	// Image/video variants carried a free-form parameter bag and an
	// optional style preset.
	Params json.RawMessage `json:"params,omitempty"`
	Style  string          `json:"style,omitempty"`

	// Video variant only.
	DurationSeconds int `json:"duration_seconds,omitempty"`
}
