package domain_test

import (
	"testing"

	"github.com/pocketcoach/converse/pkg/domain"
)

func TestLine_Speaker(t *testing.T) {
	cases := []struct {
		typ  string
		want domain.Speaker
	}{
		{"", domain.SpeakerAgent},
		{"null", domain.SpeakerAgent},
		{"undefined", domain.SpeakerAgent},
		{"textbox", domain.SpeakerUser},
		{"Submit", domain.SpeakerUser},
		{"somethingelse", domain.SpeakerUser},
	}
	for _, c := range cases {
		l := domain.Line{ID: "L", Type: c.typ}
		if got := l.Speaker(); got != c.want {
			t.Errorf("Speaker for type %q = %v, want %v", c.typ, got, c.want)
		}
	}
}

func TestLine_Prompt(t *testing.T) {
	cases := []struct {
		name string
		line domain.Line
		want bool
	}{
		{"plain text", domain.Line{}, false},
		{"textbox", domain.Line{Type: "textbox"}, true},
		{"singleselect does not block", domain.Line{Type: "singleselect"}, false},
		{"slider does not block", domain.Line{Type: "slider"}, false},
		{"submit with content", domain.Line{Type: "submit", Content: "Ok"}, true},
		{"submit without content", domain.Line{Type: "submit"}, false},
		{"goto with content stays tappable", domain.Line{Type: "goto", Content: "Skip", Target: "End"}, false},
		{"image plain", domain.Line{Type: "image", Content: "pic.png"}, false},
		{"image timed", domain.Line{Type: "image", Content: "pic.png", Duration: "5"}, true},
		{"wait", domain.Line{Type: "wait", Duration: "2"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.line.Prompt(); got != c.want {
				t.Errorf("Prompt() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestLine_AwardsImmediately(t *testing.T) {
	cases := []struct {
		name string
		line domain.Line
		want bool
	}{
		{"plain text", domain.Line{Points: "5"}, true},
		{"unknown type", domain.Line{Type: "hologram"}, true},
		{"image without duration", domain.Line{Type: "image"}, true},
		{"image with duration", domain.Line{Type: "image", Duration: "3"}, false},
		{"wait without duration", domain.Line{Type: "wait"}, true},
		{"skillselect never", domain.Line{Type: "skillselect", Points: "10"}, false},
		{"singleselect on action", domain.Line{Type: "singleselect"}, false},
		{"textbox on action", domain.Line{Type: "textbox"}, false},
		{"bare continue", domain.Line{Type: "continue"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.line.AwardsImmediately(); got != c.want {
				t.Errorf("AwardsImmediately() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestScript_Position(t *testing.T) {
	s := domain.ScriptFromLines([]domain.Line{
		{ID: "Intro"},
		{ID: "Q1", Type: "textbox"},
		{ID: "Done", Type: "submit", Content: "Ok"},
	})

	if pos, err := s.Position("q1"); err != nil || pos != 1 {
		t.Errorf("Position(q1) = %d, %v; want 1, nil", pos, err)
	}
	if pos, err := s.Position("2"); err != nil || pos != 2 {
		t.Errorf("Position(2) = %d, %v; want 2, nil", pos, err)
	}
	if _, err := s.Position("nope"); err != domain.ErrTargetNotFound {
		t.Errorf("Position(nope) err = %v, want ErrTargetNotFound", err)
	}
	if _, err := s.Position("99"); err != domain.ErrTargetNotFound {
		t.Errorf("Position(99) err = %v, want ErrTargetNotFound", err)
	}
}

func TestLineFromRecord(t *testing.T) {
	rec := map[string]string{
		"RowKey":        "00042",
		"ID":            "L1",
		"Type":          "singleselect",
		"Content":       "An option",
		"ShowCondition": "Points > 10",
		"Points":        "5",
		"Extra":         "ignored",
	}
	l, err := domain.LineFromRecord(rec)
	if err != nil {
		t.Fatalf("LineFromRecord: %v", err)
	}
	if l.ID != "L1" || l.Kind() != "singleselect" || l.Points != "5" {
		t.Errorf("unexpected line: %+v", l)
	}

	// Fall back to the row key when the ID column is absent.
	delete(rec, "ID")
	l, err = domain.LineFromRecord(rec)
	if err != nil {
		t.Fatalf("LineFromRecord: %v", err)
	}
	if l.ID != "00042" {
		t.Errorf("ID = %q, want row key fallback", l.ID)
	}
}
