// Package interception decides, for each attempted withdrawal by a mule
// account, whether to let it through, block it, or freeze the account and
// alert the duty officer.
//
// An account is either Open or Frozen and only ever moves Open -> Frozen
// here; un-freezing is an administrative reset outside this package.
package interception

// Decision is the verdict on one transaction.
type Decision string

const (
	Approved    Decision = "APPROVED"
	Blocked     Decision = "BLOCKED"     // account was already frozen
	Intercepted Decision = "INTERCEPTED" // account frozen by this call, alert dispatched
)

// Proposal is an attempted transaction.
type Proposal struct {
	AccountID string
	Amount    int64
	Lat       float64
	Long      float64
}

// Alert status values reported in a Result.
const (
	AlertSent          = "sent"
	AlertFailed        = "failed"
	AlertNotConfigured = "not_configured"
)

// Result is the decision plus what happened on the way.
type Result struct {
	Decision       Decision
	Message        string
	Reason         string // why the proposal was considered high risk
	AlertStatus    string // set only when Decision is Intercepted
	AlertReference string
	FrozenRows     int64
}

const (
	msgApproved    = "Transaction approved."
	msgBlocked     = "Account is frozen. Transaction blocked."
	msgIntercepted = "High-risk withdrawal intercepted. Account frozen and police alerted."
)
