package domain

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Line type vocabulary. The type drives renderer behavior; the engine only
// cares about the classification helpers below.
const (
	TypeNone         = ""
	TypeTextbox      = "textbox"
	TypeOpenText     = "opentext"
	TypeSingleSelect = "singleselect"
	TypeMultiSelect  = "multiselect"
	TypeSkillSelect  = "skillselect"
	TypeSlider       = "slider"
	TypeCalendar     = "calendar"
	TypeLikertScale  = "likertscale"
	TypeRadioButton  = "radiobutton"
	TypeAudio        = "audio"
	TypeVideo        = "video"
	TypeImage        = "image"
	TypeFullscreen   = "fullscreen"
	TypeContinue     = "continue"
	TypeSubmit       = "submit"
	TypeGoto         = "goto"
	TypeWait         = "wait"
)

// Speaker classifies who a turn belongs to.
type Speaker string

const (
	SpeakerAgent Speaker = "agent"
	SpeakerUser  Speaker = "user"
)

// Line is one scripted unit of content or interaction. Lines are immutable
// once loaded into a Script.
type Line struct {
	ID              string `mapstructure:"ID" yaml:"id"`
	Type            string `mapstructure:"Type" yaml:"type,omitempty"`
	Content         string `mapstructure:"Content" yaml:"content,omitempty"`
	ShowCondition   string `mapstructure:"ShowCondition" yaml:"show_condition,omitempty"`
	EnableCondition string `mapstructure:"EnableCondition" yaml:"enable_condition,omitempty"`
	Points          string `mapstructure:"Points" yaml:"points,omitempty"`
	Target          string `mapstructure:"Target" yaml:"target,omitempty"`
	Sound           string `mapstructure:"Sound" yaml:"sound,omitempty"`
	Duration        string `mapstructure:"Duration" yaml:"duration,omitempty"`
	Icon            string `mapstructure:"Icon" yaml:"icon,omitempty"`
}

// NormalizeType canonicalizes a raw Type cell. The content worksheets the
// original data came from contain literal "null"/"undefined" strings for
// empty cells, which must classify as plain agent lines.
func NormalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "null" || t == "undefined" {
		return TypeNone
	}
	return t
}

// Kind returns the normalized type of the line.
func (l Line) Kind() string {
	return NormalizeType(l.Type)
}

// Speaker derives the speaker role: any non-empty type is a user line,
// everything else belongs to the agent.
func (l Line) Speaker() Speaker {
	if l.Kind() != TypeNone {
		return SpeakerUser
	}
	return SpeakerAgent
}

// Prompt reports whether a materialized turn of this line blocks the
// conversation until it is submitted (by the user or a timer). Selection
// types (single/multi select, slider, skillselect) do not block: their
// cluster keeps materializing and a later submit/continue line gates it.
// A goto with content never blocks either; the bubble stays tappable while
// the conversation flows past it.
func (l Line) Prompt() bool {
	switch l.Kind() {
	case TypeTextbox, TypeOpenText, TypeCalendar, TypeLikertScale,
		TypeRadioButton, TypeAudio, TypeVideo, TypeFullscreen, TypeWait:
		return true
	case TypeContinue, TypeSubmit:
		// Content-less ones fire by themselves.
		return l.Content != ""
	case TypeImage:
		return l.Duration != ""
	}
	return false
}

// AwardsImmediately reports whether the line's points are granted at
// materialization rather than on a qualifying user action. Skill selections
// never award their own points: those are the possible points, granted by the
// lines that follow the skill.
func (l Line) AwardsImmediately() bool {
	switch l.Kind() {
	case TypeImage, TypeWait:
		return l.Duration == ""
	case TypeContinue, TypeSubmit, TypeGoto:
		return l.Content == ""
	case TypeSkillSelect, TypeSingleSelect, TypeMultiSelect, TypeSlider:
		return false
	}
	return !l.Prompt()
}

// Selection reports whether the line is a toggleable member of a selection
// cluster.
func (l Line) Selection() bool {
	switch l.Kind() {
	case TypeSingleSelect, TypeMultiSelect, TypeSkillSelect, TypeSlider,
		TypeRadioButton, TypeLikertScale:
		return true
	}
	return false
}

// Exclusive reports whether the line participates in mutually exclusive
// selection within its group.
func (l Line) Exclusive() bool {
	switch l.Kind() {
	case TypeSingleSelect, TypeSkillSelect, TypeRadioButton, TypeLikertScale:
		return true
	}
	return false
}

// LineFromRecord decodes a flat string-keyed record (a tabular store row)
// into a Line. Unknown columns are ignored.
func LineFromRecord(rec map[string]string) (Line, error) {
	var l Line
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &l,
	})
	if err != nil {
		return Line{}, err
	}
	if err := dec.Decode(rec); err != nil {
		return Line{}, fmt.Errorf("decoding line record: %w", err)
	}
	if l.ID == "" {
		l.ID = rec["RowKey"]
	}
	return l, nil
}
