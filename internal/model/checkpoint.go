package model

import "time"

// Checkpoint is the overnight runner's persisted progress marker. It is
// written after every processed lead and read once at process start, so a
// crash between calls never double-counts a completed call as pending and
// never skips a pending one.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	LeadKeys  []string  `json:"lead_keys"`
	NextIndex int       `json:"next_index"`
	CreatedAt time.Time `json:"created_at"`
}

// Remaining returns how many leads are still pending.
func (c *Checkpoint) Remaining() int {
	if c.NextIndex >= len(c.LeadKeys) {
		return 0
	}
	return len(c.LeadKeys) - c.NextIndex
}

// Done reports whether every lead in the batch has been processed.
func (c *Checkpoint) Done() bool {
	return c.Remaining() == 0
}
