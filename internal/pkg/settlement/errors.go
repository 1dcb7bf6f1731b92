package settlement

import "errors"

var (
	ErrSignatureMissing   = errors.New("signature header missing")
	ErrSignatureMalformed = errors.New("signature is not valid hex")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrTimestampMissing   = errors.New("event timestamp missing")
	ErrReplayRejected     = errors.New("event timestamp outside replay window")
	ErrInvalidPayload     = errors.New("invalid event payload")
	ErrUnknownOrder       = errors.New("unknown order")
	ErrAlreadyProcessed   = errors.New("payment already processed")
	ErrForbidden          = errors.New("order belongs to another buyer")
	ErrSettlementFailed   = errors.New("settlement failed")
)
