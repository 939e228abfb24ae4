package migration

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/palstore/internal/models"
)

// imageSchema is the parameter schema every legacy image-type pal gets; the
// legacy format hard-coded these fields in the UI instead of declaring them.
func imageSchema() []models.ParameterField {
	return []models.ParameterField{
		{Key: "subject", Type: models.ParameterText, Label: "Subject", Required: true, Placeholder: "What should be in the picture?"},
		{Key: "style", Type: models.ParameterSelect, Label: "Style", Options: []string{"photo", "sketch", "anime", "oil"}},
	}
}

// transformRecord maps one legacy record onto the current pal shape. The
// legacy format is a tagged union; dispatch happens on the type tag only,
// never on field presence.
func transformRecord(rec models.LegacyRecord) (*models.Pal, error) {
	switch rec.Type {
	case models.LegacyTypeAssistant:
		return transformAssistant(rec), nil
	case models.LegacyTypeImage:
		return transformImage(rec), nil
	case models.LegacyTypeVideo:
		return transformVideo(rec), nil
	default:
		return nil, fmt.Errorf("unknown legacy pal type %q", rec.Type)
	}
}

func base(rec models.LegacyRecord) *models.Pal {
	return &models.Pal{
		Name:                   rec.Name,
		Description:            rec.Description,
		ThumbnailRef:           rec.Thumbnail,
		PromptTemplate:         rec.Prompt,
		PromptTemplateOriginal: rec.Prompt,
		Source:                 models.SourceLocal,
	}
}

func transformAssistant(rec models.LegacyRecord) *models.Pal {
	// Plain chat personas carry no schema: free-form parameters.
	return base(rec)
}

func transformImage(rec models.LegacyRecord) *models.Pal {
	p := base(rec)
	p.Capabilities = map[string]bool{"image": true}
	p.ParameterSchema = imageSchema()
	p.Parameters = legacyParams(rec)
	return p
}

func transformVideo(rec models.LegacyRecord) *models.Pal {
	p := transformImage(rec)
	p.Capabilities["video"] = true
	p.ParameterSchema = append(p.ParameterSchema, models.ParameterField{
		Key: "duration", Type: models.ParameterText, Label: "Duration (seconds)", Placeholder: "8",
	})
	if rec.DurationSeconds > 0 {
		if p.Parameters == nil {
			p.Parameters = map[string]string{}
		}
		p.Parameters["duration"] = strconv.Itoa(rec.DurationSeconds)
	}
	return p
}

// legacyParams decodes the legacy free-form parameter bag. Values were
// written by several app generations, so non-string values are coerced and
// a malformed bag degrades to no parameters rather than failing the record.
func legacyParams(rec models.LegacyRecord) map[string]string {
	if len(rec.Params) == 0 && rec.Style == "" {
		return nil
	}
	out := map[string]string{}
	if len(rec.Params) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(rec.Params, &raw); err == nil {
			for k, v := range raw {
				switch t := v.(type) {
				case string:
					out[k] = t
				case float64:
					out[k] = strconv.FormatFloat(t, 'f', -1, 64)
				case bool:
					out[k] = strconv.FormatBool(t)
				}
			}
		}
	}
	if rec.Style != "" {
		out["style"] = rec.Style
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
