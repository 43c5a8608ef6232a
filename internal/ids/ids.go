// Package ids generates the prefixed opaque identifiers spec.md §3 requires
// ("session:<uuid>", "req:<uuid>", …), grounded on the teacher's use of
// github.com/google/uuid for Spec/AgentRequest/AgentPlan ids.
package ids

import "github.com/google/uuid"

const (
	PrefixSession    = "session"
	PrefixApproval   = "req"
	PrefixPrompt     = "prompt"
	PrefixStall      = "stall"
	PrefixCheckpoint = "checkpoint"
	PrefixSteering   = "steer"
	PrefixInbox      = "task"
)

// New returns a new "<prefix>:<uuid>" identifier.
func New(prefix string) string {
	return prefix + ":" + uuid.NewString()
}
