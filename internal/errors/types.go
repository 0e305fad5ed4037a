package errors

import "errors"

var (
	ErrInvalidKeyLength     = errors.New("invalid key length")
	ErrNoKeysConfigured     = errors.New("no audit crypto keys configured")
	ErrUnknownKid           = errors.New("unknown kid")
	ErrUnknownKey           = errors.New("no key material for kid")
	ErrUnsupportedAlgorithm = errors.New("unsupported envelope algorithm")
	ErrAuthenticationFailed = errors.New("envelope authentication failed")
	ErrInvalidEnvelope      = errors.New("invalid envelope")
	ErrJobNotFound          = errors.New("reencrypt job not found")
	ErrJobTerminal          = errors.New("reencrypt job already finished")
)

// IsCryptoFailure reports whether err is one of the non-retriable
// cryptographic failures. These indicate corruption or tampering and must
// never be treated as missing data.
func IsCryptoFailure(err error) bool {
	return errors.Is(err, ErrUnknownKey) ||
		errors.Is(err, ErrUnsupportedAlgorithm) ||
		errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrInvalidEnvelope)
}
