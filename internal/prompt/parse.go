// Package prompt parses pal prompt templates.
//
// Catalog authors may embed a parameter declaration into the template text as
// an HTML-style comment block:
//
//	<!--pal:params {"schema":[{"key":"mood","type":"select","label":"Mood","options":["happy","grim"]}],"defaults":{"mood":"happy"}} -->
//
// Parse splits such a template into a clean renderable body plus the
// structured schema and default values, so no other code has to do string
// surgery on templates.
package prompt

import (
	"encoding/json"
	"strings"

	"github.com/dmitrijs2005/palstore/internal/models"
)

const (
	blockStart = "<!--pal:params"
	blockEnd   = "-->"
)

// Parsed is the result of splitting a raw template.
type Parsed struct {
	// Template is the body with the parameter block removed.
	Template string

	// Schema is the declared parameter list, empty when the template carries
	// no block or the block is malformed.
	Schema []models.ParameterField

	// Defaults maps parameter keys to their declared default values.
	Defaults map[string]string
}

type paramsBlock struct {
	Schema   []models.ParameterField `json:"schema"`
	Defaults map[string]string       `json:"defaults"`
}

// Parse extracts the first parameter block from raw. The block is removed
// from the returned template either way; malformed JSON inside the block
// degrades to an empty schema rather than failing the whole template.
func Parse(raw string) Parsed {
	start := strings.Index(raw, blockStart)
	if start < 0 {
		return Parsed{Template: raw}
	}
	rest := raw[start+len(blockStart):]
	end := strings.Index(rest, blockEnd)
	if end < 0 {
		// Unterminated block: leave the template alone.
		return Parsed{Template: raw}
	}

	payload := strings.TrimSpace(rest[:end])
	cleaned := strings.TrimSpace(raw[:start] + rest[end+len(blockEnd):])

	var blk paramsBlock
	if err := json.Unmarshal([]byte(payload), &blk); err != nil {
		return Parsed{Template: cleaned}
	}
	// Parameter keys must stay within the declared schema; a default for an
	// undeclared key is dropped. An empty schema means free-form parameters,
	// so defaults pass through untouched.
	if len(blk.Schema) > 0 && len(blk.Defaults) > 0 {
		declared := make(map[string]bool, len(blk.Schema))
		for _, f := range blk.Schema {
			declared[f.Key] = true
		}
		for k := range blk.Defaults {
			if !declared[k] {
				delete(blk.Defaults, k)
			}
		}
	}
	return Parsed{Template: cleaned, Schema: blk.Schema, Defaults: blk.Defaults}
}

// Render substitutes {{key}} placeholders in template with values, falling
// back to defaults for keys missing from values. Unknown placeholders are
// left intact.
func Render(template string, values, defaults map[string]string) string {
	out := template
	for k, v := range defaults {
		if values != nil {
			if ov, ok := values[k]; ok {
				v = ov
			}
		}
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	for k, v := range values {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
