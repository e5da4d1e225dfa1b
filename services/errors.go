package services

import (
	"errors"
	"net/http"
)

// ErrorKind groups lobby failures by the precondition they violate.
type ErrorKind string

const (
	KindInvalidPhase        ErrorKind = "invalid_phase"
	KindCapacityViolation   ErrorKind = "capacity_violation"
	KindMembershipViolation ErrorKind = "membership_violation"
	KindRoundState          ErrorKind = "round_state_violation"
	KindValueViolation      ErrorKind = "value_violation"
)

// LobbyError is a user-visible rejection. It is always returned before any
// state is mutated.
type LobbyError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"error"`
}

func (e *LobbyError) Error() string {
	return e.Message
}

func newLobbyError(kind ErrorKind, code, msg string) *LobbyError {
	return &LobbyError{Kind: kind, Code: code, Message: msg}
}

var (
	// InvalidPhase
	ErrStillInPreparation = newLobbyError(KindInvalidPhase, "StillInPreparation", "Round is in prepartion")
	ErrTooEarly           = newLobbyError(KindInvalidPhase, "TooEarly", "Too early, round in preps")
	ErrTooLate            = newLobbyError(KindInvalidPhase, "TooLate", "Too late, play time ended")
	ErrRoundNotEnded      = newLobbyError(KindInvalidPhase, "RoundNotEnded", "Round time not ended")
	ErrPrepWindowClosed   = newLobbyError(KindInvalidPhase, "PrepWindowClosed", "Too late, prep time passed")

	// CapacityViolation
	ErrLobbyFull = newLobbyError(KindCapacityViolation, "LobbyFull", "Lobby is full")

	// MembershipViolation
	ErrAlreadyJoined   = newLobbyError(KindMembershipViolation, "AlreadyJoined", "Already joined")
	ErrNotJoined       = newLobbyError(KindMembershipViolation, "NotJoined", "Not joined")
	ErrNotJoinedRound  = newLobbyError(KindMembershipViolation, "NotJoined", "You have not joined current round")
	ErrNotAParticipant = newLobbyError(KindMembershipViolation, "NotAParticipant", "You did not join")
	ErrReservedAccount = newLobbyError(KindMembershipViolation, "ReservedAccount", "Lobby accounts cannot join")

	// RoundStateViolation
	ErrRoundNotActive    = newLobbyError(KindRoundState, "RoundNotActive", "Round is not active")
	ErrRoundNotCancelled = newLobbyError(KindRoundState, "RoundNotCancelled", "Round is not cancelled")
	ErrRoundNotSettled   = newLobbyError(KindRoundState, "RoundNotSettled", "Current round is not finished or cancelled")
	ErrRoundNotFound     = newLobbyError(KindRoundState, "RoundNotFound", "Round not found")
	ErrPayoutSettled     = newLobbyError(KindRoundState, "PayoutSettled", "Round funds already paid out")

	// ValueViolation
	ErrInvalidStake      = newLobbyError(KindValueViolation, "InvalidStake", "Value must equal the ticket price")
	ErrInsufficientFunds = newLobbyError(KindValueViolation, "InsufficientFunds", "Insufficient balance for transfer")
	ErrAmountOverflow    = newLobbyError(KindValueViolation, "AmountOverflow", "Amount exceeds ledger capacity")
)

// AsLobbyError unwraps err into a *LobbyError if it is one.
func AsLobbyError(err error) (*LobbyError, bool) {
	var le *LobbyError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// HTTPStatus maps a lobby error onto a response status.
func HTTPStatus(err error) int {
	le, ok := AsLobbyError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if le == ErrRoundNotFound {
		return http.StatusNotFound
	}
	switch le.Kind {
	case KindMembershipViolation:
		return http.StatusForbidden
	case KindValueViolation:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}
