package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mfranzen/storyforge/internal/model"
)

// Preset carries per-category prompt flavoring. Zero values mean the prompt
// builders omit the corresponding hint.
type Preset struct {
	Tone        string `yaml:"tone" json:"tone,omitempty"`
	Audience    string `yaml:"audience" json:"audience,omitempty"`
	TitleSuffix string `yaml:"title_suffix" json:"title_suffix,omitempty"`
}

// Presets maps story types to their prompt flavoring.
type Presets map[model.StoryType]Preset

// Get returns the preset for a story type, or the zero preset.
func (p Presets) Get(storyType model.StoryType) Preset {
	return p[storyType]
}

// DefaultPresets returns the built-in flavoring for the categories that
// benefit from it. Categories absent here run with neutral prompts.
func DefaultPresets() Presets {
	return Presets{
		"paranormal": {
			Tone:        "grounded dread, the extraordinary treated as witnessed fact",
			TitleSuffix: "True Encounter",
		},
		"horror": {
			Tone:        "slow-burn tension, sensory and claustrophobic",
			TitleSuffix: "Horror Story",
		},
		"survival": {
			Tone:        "physical, exhausted, minute-by-minute stakes",
			TitleSuffix: "Survival Story",
		},
		"history_learning": {
			Tone:     "narrated documentary with a clear golden thread",
			Audience: "curious adults who want depth without jargon",
		},
		"sleep": {
			Tone:     "calm, unhurried, low-stakes and warm",
			Audience: "listeners falling asleep; nothing startling",
		},
	}
}

// LoadPresets overlays a YAML file onto the built-in defaults. Entries in the
// file replace the default for that story type wholesale. An empty path
// returns the defaults unchanged.
func LoadPresets(path string) (Presets, error) {
	presets := DefaultPresets()
	if path == "" {
		return presets, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}
	var fromFile map[model.StoryType]Preset
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return nil, fmt.Errorf("parse presets file: %w", err)
	}
	for storyType, preset := range fromFile {
		if !storyType.Valid() {
			return nil, fmt.Errorf("presets file: unknown story type %q", storyType)
		}
		presets[storyType] = preset
	}
	return presets, nil
}
