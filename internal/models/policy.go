package models

// PolicySource identifies which layer produced an effective lending policy.
type PolicySource string

// Policy sources in precedence order.
const (
	PolicySourceBook     PolicySource = "book"
	PolicySourceCategory PolicySource = "category"
	PolicySourceDefault  PolicySource = "default"
)

// LendingPolicy is the effective loan policy for a (book, student) pair.
type LendingPolicy struct {
	LoanDuration      int          `json:"loanDuration"`
	ExtensionAllowed  bool         `json:"extensionAllowed"`
	ExtensionLimit    int          `json:"extensionLimit"`
	ExtensionDuration int          `json:"extensionDuration"`
	Source            PolicySource `json:"source"`
}

// LimitReason explains a refused borrowing limit check.
type LimitReason string

// Limit refusal reasons.
const (
	LimitReasonNone    LimitReason = ""
	LimitReasonBanned  LimitReason = "banned"
	LimitReasonReached LimitReason = "limit_reached"
)

// LimitStatus is the outcome of a borrowing limit check.
type LimitStatus struct {
	Allowed   bool        `json:"allowed"`
	Current   int         `json:"current"`
	Limit     int         `json:"limit"`
	Remaining int         `json:"remaining"`
	Reason    LimitReason `json:"reason,omitempty"`
}
