// Package models defines the data models persisted and synced by PalStore.
package models

import "time"

// Source tells where a pal originated.
type Source string

const (
	// SourceLocal marks a pal created on this device by the user.
	SourceLocal Source = "local"
	// SourceRemote marks a pal materialized from a remote catalog item.
	SourceRemote Source = "remote"
)

// ParameterType enumerates the kinds of prompt parameters a pal can declare.
type ParameterType string

const (
	ParameterText   ParameterType = "text"
	ParameterSelect ParameterType = "select"
	ParameterTag    ParameterType = "tag"
)

// ParameterField describes one prompt parameter. The ordered list of fields
// drives validation of Pal.Parameters and renders the edit form upstream.
type ParameterField struct {
	Key         string        `json:"key"`
	Type        ParameterType `json:"type"`
	Label       string        `json:"label"`
	Required    bool          `json:"required"`
	Options     []string      `json:"options,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Description string        `json:"description,omitempty"`
}

// CreatorInfo mirrors the catalog author of a downloaded pal.
type CreatorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Pal is a locally persisted, user-visible persona record.
//
// Non-scalar fields (Parameters, ParameterSchema, Capabilities, Categories,
// Tags, Creator, GenerationSettings, RemoteSettings) are stored as
// independently serialized JSON columns. Absent values are stored as empty
// strings, never as JSON null, so round-trips stay lossless.
type Pal struct {
	// ID is generated locally on creation and never reused.
	ID string

	Name        string
	Description string

	// ThumbnailRef is either a local file reference or a remote URL; the two
	// are told apart by a URL-scheme check, not a stored flag.
	ThumbnailRef string

	// PromptTemplate is the working template; PromptTemplateOriginal keeps
	// the verbatim authored text so the template can be re-edited later even
	// after PromptTemplate has been rendered or modified.
	PromptTemplate         string
	PromptTemplateOriginal string
	PromptIsModified       bool

	// Parameters is an open key->value map with no fixed shape. When
	// ParameterSchema is non-empty, parameter keys are a subset of schema keys.
	Parameters map[string]string

	// ParameterSchema is the ordered list of parameter descriptors.
	ParameterSchema []ParameterField

	// Capabilities is an open set of boolean feature flags, e.g. "video".
	Capabilities map[string]bool

	Source Source

	// RemoteID links a remote-sourced pal back to its catalog item.
	RemoteID string

	// Remote-derived metadata mirrored onto the pal at download time.
	Creator     *CreatorInfo
	Categories  []string
	Tags        []string
	Rating      float64
	ReviewCount int
	Protection  string
	Price       float64
	Owned       bool

	// GenerationSettings holds locally edited settings; RemoteSettings keeps
	// the raw settings that came with the catalog item. Local always wins
	// when both exist.
	GenerationSettings *GenerationSettings
	RemoteSettings     *GenerationSettings

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCapability reports whether the given capability flag is set.
func (p *Pal) HasCapability(name string) bool {
	return p.Capabilities[name]
}

// IsLocalThumbnail reports whether ThumbnailRef points at a local file
// rather than a remote URL.
func (p *Pal) IsLocalThumbnail() bool {
	return p.ThumbnailRef != "" && !hasURLScheme(p.ThumbnailRef)
}

func hasURLScheme(ref string) bool {
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		if c == ':' {
			return i > 0 && len(ref) > i+2 && ref[i+1] == '/' && ref[i+2] == '/'
		}
		if !(('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return false
}

// PalUpdate carries a partial update for a pal. Nil fields are left
// untouched; absence never clears a stored value.
type PalUpdate struct {
	Name                   *string
	Description            *string
	ThumbnailRef           *string
	PromptTemplate         *string
	PromptTemplateOriginal *string
	PromptIsModified       *bool
	Parameters             map[string]string
	ParameterSchema        []ParameterField
	Capabilities           map[string]bool
	Categories             []string
	Tags                   []string
	GenerationSettings     *GenerationSettings
	RemoteSettings         *GenerationSettings
}
