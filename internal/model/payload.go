package model

import (
	"errors"
	"fmt"
	"strings"
)

// StoryType identifies the content category a job belongs to. It doubles as
// the directory name artifacts are persisted under.
type StoryType string

var storyTypes = map[StoryType]bool{
	"romance":          true,
	"horror":           true,
	"paranormal":       true,
	"adventure":        true,
	"history_learning": true,
	"mystery":          true,
	"sci_fi":           true,
	"fantasy":          true,
	"sleep":            true,
	"dystopia":         true,
	"alt_history":      true,
	"folklore":         true,
	"cozy_mystery":     true,
	"space_opera":      true,
	"philosophy":       true,
	"survival":         true,
}

// Valid reports whether the story type is a known category.
func (s StoryType) Valid() bool {
	return storyTypes[s]
}

// Label returns a human-readable form, e.g. "sci fi" for sci_fi.
func (s StoryType) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// NarrationMode selects the prose voice used for chapter generation.
type NarrationMode string

const (
	NarrationFirstPerson   NarrationMode = "first_person_survival"
	NarrationInvestigative NarrationMode = "investigative_casefile"
	NarrationDocumentary   NarrationMode = "documentary_flat"
)

func (m NarrationMode) valid() bool {
	switch m {
	case NarrationFirstPerson, NarrationInvestigative, NarrationDocumentary:
		return true
	default:
		return false
	}
}

const (
	// MinTargetMinutes and MaxTargetMinutes bound the requested duration.
	MinTargetMinutes = 5
	MaxTargetMinutes = 240

	// MinIngestScriptChars is the minimum accepted ingest script length
	// after trimming surrounding whitespace.
	MinIngestScriptChars = 100
)

// GenerateRequest is the immutable payload of a generate-from-scratch job.
type GenerateRequest struct {
	StoryType      StoryType     `json:"story_type"`
	TargetMinutes  int           `json:"target_minutes"`
	SeedTopic      string        `json:"seed_topic,omitempty"`
	NarrationMode  NarrationMode `json:"narration_mode,omitempty"`
	PackagingStyle string        `json:"packaging_style,omitempty"`
}

// Validate checks the request at the admission boundary. Violations never
// create a job.
func (r *GenerateRequest) Validate() error {
	if !r.StoryType.Valid() {
		return fmt.Errorf("story_type: unknown value %q", r.StoryType)
	}
	if r.TargetMinutes < MinTargetMinutes || r.TargetMinutes > MaxTargetMinutes {
		return fmt.Errorf("target_minutes: must be between %d and %d", MinTargetMinutes, MaxTargetMinutes)
	}
	if r.NarrationMode == "" {
		r.NarrationMode = NarrationDocumentary
	}
	if !r.NarrationMode.valid() {
		return fmt.Errorf("narration_mode: unknown value %q", r.NarrationMode)
	}
	return nil
}

// IngestRequest is the immutable payload of an ingest job: the caller
// supplies a finished script and only packaging and visuals are generated.
type IngestRequest struct {
	StoryType      StoryType     `json:"story_type"`
	Script         string        `json:"script"`
	TargetMinutes  *int          `json:"target_minutes,omitempty"`
	SeedTopic      string        `json:"seed_topic,omitempty"`
	NarrationMode  NarrationMode `json:"narration_mode,omitempty"`
	PackagingStyle string        `json:"packaging_style,omitempty"`
}

// Validate checks the ingest request at the admission boundary.
func (r *IngestRequest) Validate() error {
	if !r.StoryType.Valid() {
		return fmt.Errorf("story_type: unknown value %q", r.StoryType)
	}
	if len(strings.TrimSpace(r.Script)) < MinIngestScriptChars {
		return fmt.Errorf("script: must be at least %d characters", MinIngestScriptChars)
	}
	if r.TargetMinutes != nil {
		if *r.TargetMinutes < MinTargetMinutes || *r.TargetMinutes > MaxTargetMinutes {
			return fmt.Errorf("target_minutes: must be between %d and %d", MinTargetMinutes, MaxTargetMinutes)
		}
	}
	if r.NarrationMode == "" {
		r.NarrationMode = NarrationDocumentary
	}
	if !r.NarrationMode.valid() {
		return fmt.Errorf("narration_mode: unknown value %q", r.NarrationMode)
	}
	return nil
}

// PayloadKind discriminates the payload union.
type PayloadKind string

const (
	PayloadGenerate PayloadKind = "generate"
	PayloadIngest   PayloadKind = "ingest"
)

// Payload is the tagged union of job inputs, decided once when the request
// is parsed and carried typed thereafter. Exactly one of Generate/Ingest is
// set, matching Kind.
type Payload struct {
	Kind     PayloadKind
	Generate *GenerateRequest
	Ingest   *IngestRequest
}

// NewGeneratePayload wraps a validated generate request.
func NewGeneratePayload(r *GenerateRequest) Payload {
	return Payload{Kind: PayloadGenerate, Generate: r}
}

// NewIngestPayload wraps a validated ingest request.
func NewIngestPayload(r *IngestRequest) Payload {
	return Payload{Kind: PayloadIngest, Ingest: r}
}

// Validate checks internal consistency of the union.
func (p Payload) Validate() error {
	switch p.Kind {
	case PayloadGenerate:
		if p.Generate == nil {
			return errors.New("generate payload missing")
		}
	case PayloadIngest:
		if p.Ingest == nil {
			return errors.New("ingest payload missing")
		}
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	return nil
}

// StoryType returns the category regardless of kind.
func (p Payload) StoryType() StoryType {
	switch p.Kind {
	case PayloadGenerate:
		return p.Generate.StoryType
	case PayloadIngest:
		return p.Ingest.StoryType
	}
	return ""
}

// TargetMinutes returns the requested duration, or nil when an ingest job
// leaves it to be derived from the script length.
func (p Payload) TargetMinutes() *int {
	switch p.Kind {
	case PayloadGenerate:
		m := p.Generate.TargetMinutes
		return &m
	case PayloadIngest:
		return p.Ingest.TargetMinutes
	}
	return nil
}

// SeedTopic returns the optional seed topic.
func (p Payload) SeedTopic() string {
	switch p.Kind {
	case PayloadGenerate:
		return p.Generate.SeedTopic
	case PayloadIngest:
		return p.Ingest.SeedTopic
	}
	return ""
}
