package domain

import "time"

// Snapshot is the persisted position of a session inside a conversation:
// enough to resume at the right checkpoint after a reload, not a transcript.
type Snapshot struct {
	// Module is the conversation module the session is in.
	Module string `json:"module"`

	// Checkpoint is the line ID of the current checkpoint.
	Checkpoint string `json:"checkpoint"`

	// Trail holds the checkpoint IDs passed so far, oldest first. Its length
	// is the number of backs available.
	Trail []string `json:"trail,omitempty"`

	// UpdatedAt is the time of the last change, for conflict inspection.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy, so stores can hand out isolated values.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Trail = append([]string(nil), s.Trail...)
	return &out
}
