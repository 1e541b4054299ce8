package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// SlotUnavailableError reports a lost claim. Start is the first slot of the
// requested run so callers can offer an alternative.
type SlotUnavailableError struct {
	ProviderID string
	ListingID  string
	Start      time.Time
	Reason     string
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot unavailable at %s: %s", e.Start.UTC().Format(time.RFC3339), e.Reason)
}

func slotUnavailable(providerID, listingID string, start time.Time, reason string) error {
	return &SlotUnavailableError{ProviderID: providerID, ListingID: listingID, Start: start, Reason: reason}
}

// RecurrenceGenerationError wraps a failure while materializing future instances.
// It is logged by the caller and never fails the triggering operation.
type RecurrenceGenerationError struct {
	RuleID *uuid.UUID
	At     time.Time
	Err    error
}

func (e *RecurrenceGenerationError) Error() string {
	if e.RuleID != nil {
		return fmt.Sprintf("recurrence generation for rule %s: %v", e.RuleID, e.Err)
	}
	return fmt.Sprintf("recurrence generation: %v", e.Err)
}

func (e *RecurrenceGenerationError) Unwrap() error {
	return e.Err
}

type IssueType string

const (
	IssueInvalidStatus        IssueType = "invalid_status"
	IssueMissingAuditTrail    IssueType = "missing_audit_trail"
	IssueDuplicateTimeslot    IssueType = "duplicate_timeslot"
	IssueRecurringWithoutRule IssueType = "recurring_without_rule"
	IssueGroupMismatch        IssueType = "group_mismatch"
	IssueOrphanedRule         IssueType = "orphaned_rule"
	IssueCountMismatch        IssueType = "count_mismatch"
	// IssueUncovered marks an active appointment that holds no slot although
	// its listing's slots are materialized past it.
	IssueUncovered IssueType = "uncovered_appointment"
)

// Critical issue types flip the audit verdict.
func (t IssueType) Critical() bool {
	return t == IssueInvalidStatus || t == IssueMissingAuditTrail
}

// ConsistencyWarning is one audit finding.
type ConsistencyWarning struct {
	Type          IssueType  `json:"type"`
	Critical      bool       `json:"critical"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	RuleID        *uuid.UUID `json:"rule_id,omitempty"`
	Message       string     `json:"message"`
}

func (w ConsistencyWarning) Error() string {
	return string(w.Type) + ": " + w.Message
}
