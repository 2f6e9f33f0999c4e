package services

// ErrorKind groups ledger failures for callers that map them to transport status codes.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindPhase         ErrorKind = "phase"
	KindEconomic      ErrorKind = "economic"
	KindNotFound      ErrorKind = "not_found"
	KindAuthorization ErrorKind = "authorization"
)

// LedgerError is a rejected ledger operation. No state was changed.
type LedgerError struct {
	Code    string
	Kind    ErrorKind
	Message string
}

func (e *LedgerError) Error() string {
	return e.Code + ": " + e.Message
}

func newLedgerError(kind ErrorKind, code, message string) *LedgerError {
	return &LedgerError{Code: code, Kind: kind, Message: message}
}

var (
	ErrInvalidID       = newLedgerError(KindValidation, "InvalidId", "league id must be 1-64 characters of [A-Za-z0-9._-]")
	ErrInvalidTitle    = newLedgerError(KindValidation, "InvalidTitle", "title must be 1-200 characters")
	ErrInvalidOptions  = newLedgerError(KindValidation, "InvalidOptions", "options must be 2-10 distinct non-empty labels")
	ErrInvalidDuration = newLedgerError(KindValidation, "InvalidDuration", "duration is outside the allowed bounds")
	ErrInvalidEntryFee = newLedgerError(KindValidation, "InvalidEntryFee", "entry fee is below the minimum")
	ErrInvalidOption   = newLedgerError(KindValidation, "InvalidOption", "option index is out of range")
	ErrInvalidWeight   = newLedgerError(KindValidation, "InvalidWeight", "encrypted weight was rejected")
	ErrDuplicateID     = newLedgerError(KindValidation, "DuplicateId", "league id already exists")

	ErrRedundantChallenge = newLedgerError(KindValidation, "RedundantChallenge", "challenge must name a different outcome than the proposal")
	ErrSelfChallenge      = newLedgerError(KindValidation, "SelfChallenge", "proposer cannot challenge their own proposal")
	ErrAlreadyChallenged  = newLedgerError(KindPhase, "AlreadyChallenged", "caller already challenged this proposal")

	ErrLeagueNotFound  = newLedgerError(KindNotFound, "LeagueNotFound", "league does not exist")
	ErrNoProposal      = newLedgerError(KindNotFound, "NoProposal", "league has no proposal")
	ErrNoExistingEntry = newLedgerError(KindNotFound, "NoExistingEntry", "caller has no entry in this league")

	ErrLeagueLocked          = newLedgerError(KindPhase, "LeagueLocked", "league lock time has passed")
	ErrLeagueClosed          = newLedgerError(KindPhase, "LeagueClosed", "league is cancelled or settled")
	ErrDuplicateEntry        = newLedgerError(KindPhase, "DuplicateEntry", "caller already entered this league")
	ErrAlreadyProposed       = newLedgerError(KindPhase, "AlreadyProposed", "a proposal is already pending")
	ErrTooEarly              = newLedgerError(KindPhase, "TooEarly", "league is not locked yet")
	ErrChallengeWindowClosed = newLedgerError(KindPhase, "ChallengeWindowClosed", "challenge period has ended")
	ErrChallengeWindowOpen   = newLedgerError(KindPhase, "ChallengeWindowOpen", "challenge period has not ended")
	ErrAwaitingArbitration   = newLedgerError(KindPhase, "AwaitingArbitration", "challenged proposal is awaiting arbitration")
	ErrNotChallenged         = newLedgerError(KindPhase, "NotChallenged", "proposal has not been challenged")
	ErrArbitrationClosed     = newLedgerError(KindPhase, "ArbitrationClosed", "arbitration period has ended")
	ErrAlreadyFinalized      = newLedgerError(KindPhase, "AlreadyFinalized", "proposal is already finalized")
	ErrAlreadyResolved       = newLedgerError(KindPhase, "AlreadyResolved", "league is already settled or cancelled")
	ErrResolutionPending     = newLedgerError(KindPhase, "ResolutionPending", "league has a pending proposal")
	ErrNotSettled            = newLedgerError(KindPhase, "NotSettled", "league is not settled")
	ErrNotEligible           = newLedgerError(KindPhase, "NotEligible", "league is neither cancelled nor pushed")
	ErrNotWinner             = newLedgerError(KindPhase, "NotWinner", "entry is not on the winning option")
	ErrAlreadyClaimed        = newLedgerError(KindPhase, "AlreadyClaimed", "entry was already paid out")

	ErrInsufficientFee = newLedgerError(KindEconomic, "InsufficientFee", "payment must equal the entry fee")
	ErrWrongBond       = newLedgerError(KindEconomic, "WrongBond", "payment must equal the challenge bond")
	ErrWrongCancelFee  = newLedgerError(KindEconomic, "WrongCancelFee", "payment must equal the cancel fee")

	ErrNotAuthorized = newLedgerError(KindAuthorization, "NotAuthorized", "caller may not perform this operation now")
	ErrNotArbiter    = newLedgerError(KindAuthorization, "NotArbiter", "caller is not the configured arbiter")
)
