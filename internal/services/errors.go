package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so the transport layer can map it to a
// distinct, user-actionable outcome.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "NotFound"
	KindInvalidState    ErrorKind = "InvalidState"
	KindOtpInvalid      ErrorKind = "OtpInvalid"
	KindSessionInvalid  ErrorKind = "SessionInvalid"
	KindNotEligible     ErrorKind = "NotEligible"
	KindAlreadyVoted    ErrorKind = "AlreadyVoted"
	KindAlreadyApproved ErrorKind = "AlreadyApproved"
	KindAlreadyRejected ErrorKind = "AlreadyRejected"
	KindNotAProxy       ErrorKind = "NotAProxy"
	KindValidation      ErrorKind = "ValidationError"
	KindTransient       ErrorKind = "Transient"
)

// DomainError is a recoverable business failure of the voting engine.
// Two DomainErrors match under errors.Is when their reasons are equal.
type DomainError struct {
	Kind    ErrorKind
	Reason  string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

func newDomainError(kind ErrorKind, reason, msg string) *DomainError {
	return &DomainError{Kind: kind, Reason: reason, Message: msg}
}

var (
	ErrAssemblyNotFound    = newDomainError(KindNotFound, "assembly_not_found", "assembly not found")
	ErrAgendaItemNotFound  = newDomainError(KindNotFound, "agenda_item_not_found", "agenda item not found")
	ErrParticipantNotFound = newDomainError(KindNotFound, "participant_not_found", "participant not found")
	ErrUnitNotFound        = newDomainError(KindNotFound, "unit_not_found", "unit not found")
	ErrVoteNotFound        = newDomainError(KindNotFound, "vote_not_found", "no vote cast for this agenda item")

	ErrAssemblyNotScheduled  = newDomainError(KindInvalidState, "assembly_not_scheduled", "assembly is not scheduled")
	ErrAssemblyNotInProgress = newDomainError(KindInvalidState, "assembly_not_in_progress", "assembly is not in progress")
	ErrAssemblyFinished      = newDomainError(KindInvalidState, "assembly_finished", "assembly is finished and kept for audit")
	ErrAssemblyClosed        = newDomainError(KindInvalidState, "assembly_closed", "assembly is finished or cancelled")
	ErrAnotherItemVoting     = newDomainError(KindInvalidState, "another_item_voting", "another agenda item is already open for voting")
	ErrAlreadyVoting         = newDomainError(KindInvalidState, "already_voting", "agenda item is already open for voting")
	ErrNotVoting             = newDomainError(KindInvalidState, "not_voting", "agenda item is not open for voting")
	ErrAgendaItemClosed      = newDomainError(KindInvalidState, "agenda_item_closed", "agenda item voting is already closed")
	ErrVotingInProgress      = newDomainError(KindInvalidState, "voting_in_progress", "close the open agenda item before finishing the assembly")
	ErrVotingClosed          = newDomainError(KindInvalidState, "voting_closed", "voting is closed for this agenda item")
	ErrResultNotReady        = newDomainError(KindInvalidState, "result_not_ready", "agenda item voting has not been closed")

	ErrOtpInvalid = newDomainError(KindOtpInvalid, "otp_invalid", "invalid code")
	ErrOtpExpired = newDomainError(KindOtpInvalid, "otp_expired", "code expired, request a new one")

	ErrSessionInvalid = newDomainError(KindSessionInvalid, "session_invalid", "session token is invalid")

	ErrNotEligible = newDomainError(KindNotEligible, "not_eligible", "participant is not approved or not present")

	ErrAlreadyVoted    = newDomainError(KindAlreadyVoted, "already_voted", "a ballot was already cast for this agenda item")
	ErrAlreadyApproved = newDomainError(KindAlreadyApproved, "already_approved", "participant is already approved")
	ErrAlreadyRejected = newDomainError(KindAlreadyRejected, "already_rejected", "participant is already rejected")
	ErrNotAProxy       = newDomainError(KindNotAProxy, "not_a_proxy", "participant does not represent the unit by proxy")

	ErrInvalidChoice      = newDomainError(KindValidation, "invalid_choice", "choice must be YES, NO or ABSTENTION")
	ErrReasonRequired     = newDomainError(KindValidation, "reason_required", "a rejection reason is required")
	ErrFileTooLarge       = newDomainError(KindValidation, "file_too_large", "proxy document exceeds the maximum size")
	ErrFileTypeNotAllowed = newDomainError(KindValidation, "file_type_not_allowed", "proxy document type is not allowed")
	ErrFileEmpty          = newDomainError(KindValidation, "file_empty", "proxy document is empty")
	ErrInvalidWeight      = newDomainError(KindValidation, "invalid_weight", "voting weight must be greater than zero")
	ErrTitleRequired      = newDomainError(KindValidation, "title_required", "title is required")
	ErrInvalidQuorumType  = newDomainError(KindValidation, "invalid_quorum_type", "quorum type must be simple, qualified or unanimous")
	ErrIdentifierRequired = newDomainError(KindValidation, "identifier_required", "unit identifier is required")
	ErrUnitExists         = newDomainError(KindValidation, "unit_exists", "a unit with this identifier already exists")
)

// KindOf classifies err. Anything that is not a DomainError is an
// infrastructure failure and reported as Transient.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}

// ReasonOf returns the machine-readable reason of err, or "transient"
func ReasonOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Reason
	}
	return "transient"
}

// storeErr wraps an infrastructure failure with the failing operation
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
