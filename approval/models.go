package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request is one fee-approval record for an agent profile. Rows are append
// and update only, never deleted, so the table doubles as the audit trail.
type Request struct {
	ID                string
	AgentID           string
	BillingCategoryID string
	Purpose           string
	JoiningLevel      *string
	PromotionLevel    *string
	Amount            decimal.Decimal
	BranchID          string
	AccountID         string
	ApprovedBy        *string
	Notes             *string
	RejectReason      *string
	State             State
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Event is one immutable entry of a request's audit timeline.
type Event struct {
	ID        int64
	RequestID string
	Seq       int
	Type      string
	ActorID   *string
	Payload   []byte
	CreatedAt time.Time
}

// Filters narrows List results.
type Filters struct {
	AgentID  string
	State    State
	Page     int
	PageSize int
}
