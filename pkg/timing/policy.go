// Package timing holds the presentation timing policy: how long a typing
// indicator lingers, how long the pause is between bubbles and when the
// speaker changes sides, and how long auto-scroll animates. The policy is
// explicit configuration passed in at construction; there are no ambient
// speed globals.
package timing

import (
	"strconv"
	"time"
)

// Defaults tuned on the original deployment.
const (
	DefaultTypingDuration     = 2 * time.Second
	DefaultSideSwitchDelay    = 1 * time.Second
	DefaultInterBubbleDelay   = 1 * time.Second
	DefaultAutoScrollDuration = 100 * time.Millisecond
)

// Policy is a pure set of duration lookups. The zero value is unusable; use
// Default() or Scaled().
type Policy struct {
	// TypingDuration is the minimum time a typing indicator stays visible.
	TypingDuration time.Duration
	// SideSwitchDelay is the minimum pause before the other speaker's bubble.
	SideSwitchDelay time.Duration
	// InterBubbleDelay is the minimum pause between same-speaker bubbles.
	InterBubbleDelay time.Duration
	// AutoScrollDuration is the scroll-into-view animation length, passed
	// through to renderers.
	AutoScrollDuration time.Duration
}

// Default returns the production policy.
func Default() Policy {
	return Policy{
		TypingDuration:     DefaultTypingDuration,
		SideSwitchDelay:    DefaultSideSwitchDelay,
		InterBubbleDelay:   DefaultInterBubbleDelay,
		AutoScrollDuration: DefaultAutoScrollDuration,
	}
}

// Scaled returns the policy with every duration multiplied by factor.
// A near-zero factor produces the accelerated policy used by tests and fast
// playback; durations never scale below 1ms so wall-clock floors stay
// meaningful.
func (p Policy) Scaled(factor float64) Policy {
	scale := func(d time.Duration) time.Duration {
		s := time.Duration(float64(d) * factor)
		if s < time.Millisecond {
			return time.Millisecond
		}
		return s
	}
	return Policy{
		TypingDuration:     scale(p.TypingDuration),
		SideSwitchDelay:    scale(p.SideSwitchDelay),
		InterBubbleDelay:   scale(p.InterBubbleDelay),
		AutoScrollDuration: scale(p.AutoScrollDuration),
	}
}

// Settings keys recognized by ApplySettings. These match the settings rows of
// the content worksheet, in milliseconds.
const (
	SettingTypingDuration     = "AgentTypingDuration"
	SettingSideSwitchDelay    = "SwitchSidesDelay"
	SettingInterBubbleDelay   = "BetweenBubbleDelay"
	SettingAutoScrollDuration = "AutoScrollDuration"
)

// ApplySettings overlays content-worksheet settings onto the policy and
// returns the result. Unknown or non-numeric values leave the corresponding
// duration unchanged.
func (p Policy) ApplySettings(get func(key string) (string, bool)) Policy {
	apply := func(key string, into *time.Duration) {
		raw, ok := get(key)
		if !ok {
			return
		}
		ms, err := strconv.ParseFloat(raw, 64)
		if err != nil || ms < 0 {
			return
		}
		*into = time.Duration(ms * float64(time.Millisecond))
	}
	apply(SettingTypingDuration, &p.TypingDuration)
	apply(SettingSideSwitchDelay, &p.SideSwitchDelay)
	apply(SettingInterBubbleDelay, &p.InterBubbleDelay)
	apply(SettingAutoScrollDuration, &p.AutoScrollDuration)
	return p
}
