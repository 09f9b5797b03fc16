package outbox

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusDead      Status = "dead"
)

// Message is one transactional outbox entry awaiting delivery.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    Status
	Attempts  int
	CreatedAt time.Time
}

// Topics emitted by the approval and hierarchy workflows.
const (
	TopicApprovalSubmitted = "approval.submitted"
	TopicApprovalApproved  = "approval.approved"
	TopicApprovalPaid      = "approval.paid"
	TopicApprovalRejected  = "approval.rejected"
	TopicHierarchySlotSet  = "hierarchy.slot_set"
)
