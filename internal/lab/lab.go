// Package lab holds the registry of lab types and the generator that turns
// source content into lab payloads via the AI provider.
//
// The definition list is fixed at compile time; sources consult it to
// decide which generation actions they can offer.
package lab

import (
	"errors"
	"sort"

	"github.com/engineeringwithtemi/aide/internal/ai"
)

// ErrUnknownLabType is returned when a lab type identifier is not in the
// registry.
var ErrUnknownLabType = errors.New("unknown lab type")

// Lab status values persisted on lab records.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Action is the rich metadata the frontend needs to offer a generation
// action for a lab type.
type Action struct {
	ID           string     `json:"id"`
	Label        string     `json:"label"`
	Icon         string     `json:"icon"`
	LabType      string     `json:"lab_type"`
	Description  string     `json:"description,omitempty"`
	ConfigSchema *ai.Schema `json:"config_schema,omitempty"`
}

// Definition describes one lab type: its presentation metadata, which
// source types may generate it, and the response schema the provider must
// fill.
type Definition struct {
	Type             string
	Label            string
	Icon             string
	Description      string
	SupportedSources []string
	ResponseSchema   *ai.Schema
}

// Action builds a fresh Action for the definition. The config schema is a
// new value on every call so callers may extend it without mutating the
// registry.
func (d Definition) Action() Action {
	return Action{
		ID:          "generate_" + d.Type,
		Label:       d.Label,
		Icon:        d.Icon,
		LabType:     d.Type,
		Description: d.Description,
		ConfigSchema: &ai.Schema{
			Type:       "object",
			Properties: map[string]*ai.Schema{},
		},
	}
}

// Supports reports whether the given source type can generate this lab.
func (d Definition) Supports(sourceType string) bool {
	for _, s := range d.SupportedSources {
		if s == sourceType {
			return true
		}
	}
	return false
}

var definitions = []Definition{
	{
		Type:             "code_lab",
		Label:            "Generate Code Lab",
		Icon:             "code",
		Description:      "Create an interactive coding exercise from the source material",
		SupportedSources: []string{"pdf"},
		ResponseSchema: &ai.Schema{
			Type: "object",
			Properties: map[string]*ai.Schema{
				"title":       {Type: "string"},
				"description": {Type: "string", Description: "What the learner will practice"},
				"language":    {Type: "string", Enum: []string{"python", "javascript", "go"}},
				"starter_code": {
					Type:        "string",
					Description: "Skeleton code the learner completes",
				},
				"solution_code": {Type: "string"},
				"tests": {
					Type:  "array",
					Items: &ai.Schema{Type: "string", Description: "Assertion the solution must pass"},
				},
				"hints": {
					Type:  "array",
					Items: &ai.Schema{Type: "string"},
				},
			},
			Required: []string{"title", "description", "language", "starter_code", "solution_code"},
		},
	},
	{
		Type:             "flashcard_lab",
		Label:            "Generate Flashcards",
		Icon:             "cards",
		Description:      "Create a flashcard deck covering the key concepts",
		SupportedSources: []string{"pdf"},
		ResponseSchema: &ai.Schema{
			Type: "object",
			Properties: map[string]*ai.Schema{
				"title": {Type: "string"},
				"cards": {
					Type: "array",
					Items: &ai.Schema{
						Type: "object",
						Properties: map[string]*ai.Schema{
							"front": {Type: "string"},
							"back":  {Type: "string"},
						},
						Required: []string{"front", "back"},
					},
				},
			},
			Required: []string{"title", "cards"},
		},
	},
	{
		Type:             "quiz_lab",
		Label:            "Generate Quiz",
		Icon:             "quiz",
		Description:      "Create a multiple-choice quiz from the source material",
		SupportedSources: []string{"pdf"},
		ResponseSchema: &ai.Schema{
			Type: "object",
			Properties: map[string]*ai.Schema{
				"title": {Type: "string"},
				"questions": {
					Type: "array",
					Items: &ai.Schema{
						Type: "object",
						Properties: map[string]*ai.Schema{
							"question":      {Type: "string"},
							"options":       {Type: "array", Items: &ai.Schema{Type: "string"}},
							"correct_index": {Type: "integer"},
							"explanation":   {Type: "string"},
						},
						Required: []string{"question", "options", "correct_index"},
					},
				},
			},
			Required: []string{"title", "questions"},
		},
	},
}

// Definitions returns every registered lab type, sorted by type id.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Get looks up a definition by lab type id.
func Get(labType string) (Definition, bool) {
	for _, d := range definitions {
		if d.Type == labType {
			return d, true
		}
	}
	return Definition{}, false
}

// Types returns the registered lab type ids, sorted.
func Types() []string {
	out := make([]string, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d.Type)
	}
	sort.Strings(out)
	return out
}
