package directory

import "time"

// AgentSummary is the rendering slice of an agent profile. Profiles themselves
// are owned by the external back-office store; this subsystem only references
// them by id.
type AgentSummary struct {
	ID          string
	Code        string
	DisplayName string
	CreatedAt   time.Time
}

// BillingCategory carries the purposes an approval request may cite.
type BillingCategory struct {
	ID       string
	Name     string
	Purposes []string
}
