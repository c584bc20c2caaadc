package util

import "errors"

var (
	ErrVectorCountMismatch = errors.New("embedding batch returned wrong vector count")
	ErrUnrecognizedShape   = errors.New("unrecognized embedding response shape")
	ErrEmptyEmbedding      = errors.New("embedding provider returned empty vector")
	ErrVerdictUnparsed     = errors.New("verification response did not contain a verdict")

	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)
