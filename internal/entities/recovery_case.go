package entities

import "time"

// Recovery case statuses. Transitions only move forward: a pending case can
// be ignored, matched or processed, and a matched case can still be
// processed. Nothing ever returns to pending_review.
const (
	CasePendingReview = "pending_review"
	CaseMatched       = "matched"
	CaseIgnored       = "ignored"
	CaseProcessed     = "processed"
)

// RecoveryCase is a persisted, human-reviewable record of an orphaned
// payment: a ledger transfer matching the membership fee with no Membership
// row. Cases are never deleted; closed ones remain as an audit trail.
type RecoveryCase struct {
	ID            string     `json:"id"`
	TxHash        string     `json:"tx_hash"`
	FromAddress   string     `json:"from_address"`
	AmountWei     string     `json:"amount_wei"`
	BlockNumber   int64      `json:"block_number"`
	DetectedAt    time.Time  `json:"detected_at"`
	Status        string     `json:"status"`
	MatchedUserID *string    `json:"matched_user_id"`
	AdminNotes    *string    `json:"admin_notes"`
	ProcessedAt   *time.Time `json:"processed_at"`
	ProcessedBy   *string    `json:"processed_by"`
}

// ValidCaseStatus reports whether s names a known recovery case status.
func ValidCaseStatus(s string) bool {
	switch s {
	case CasePendingReview, CaseMatched, CaseIgnored, CaseProcessed:
		return true
	}
	return false
}

// CanTransitionTo enforces the forward-only case state machine.
func (c RecoveryCase) CanTransitionTo(status string) bool {
	switch c.Status {
	case CasePendingReview:
		return status == CaseIgnored || status == CaseMatched || status == CaseProcessed
	case CaseMatched:
		return status == CaseProcessed
	}
	return false
}
