package timing_test

import (
	"testing"
	"time"

	"github.com/pocketcoach/converse/pkg/timing"
)

func TestScaled(t *testing.T) {
	p := timing.Default().Scaled(0.5)
	if p.TypingDuration != time.Second {
		t.Errorf("TypingDuration = %v, want 1s", p.TypingDuration)
	}
	if p.SideSwitchDelay != 500*time.Millisecond {
		t.Errorf("SideSwitchDelay = %v, want 500ms", p.SideSwitchDelay)
	}
}

func TestScaled_Floor(t *testing.T) {
	p := timing.Default().Scaled(0)
	if p.TypingDuration != time.Millisecond {
		t.Errorf("TypingDuration = %v, want 1ms floor", p.TypingDuration)
	}
	if p.InterBubbleDelay != time.Millisecond {
		t.Errorf("InterBubbleDelay = %v, want 1ms floor", p.InterBubbleDelay)
	}
}

func TestApplySettings(t *testing.T) {
	settings := map[string]string{
		timing.SettingTypingDuration:   "500",
		timing.SettingInterBubbleDelay: "garbage",
	}
	p := timing.Default().ApplySettings(func(key string) (string, bool) {
		v, ok := settings[key]
		return v, ok
	})

	if p.TypingDuration != 500*time.Millisecond {
		t.Errorf("TypingDuration = %v, want 500ms", p.TypingDuration)
	}
	if p.InterBubbleDelay != timing.DefaultInterBubbleDelay {
		t.Errorf("InterBubbleDelay = %v, want default preserved on bad value", p.InterBubbleDelay)
	}
}
