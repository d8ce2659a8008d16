package token

import "fmt"

// Kind classifies why access-token verification failed. These kinds are
// internal to the SDK: the session engine maps them onto its public error
// taxonomy and they never reach callers directly.
type Kind int

const (
	// KindExpired means the signature verified but the token is past its
	// expiry.
	KindExpired Kind = iota
	// KindMalformed means the token could not be parsed as a token at all.
	KindMalformed
	// KindSignatureInvalid means the token parsed but no known key verifies
	// its signature (possibly a rotation window).
	KindSignatureInvalid
	// KindUnsupportedVersion means the envelope version is not one this
	// codec understands.
	KindUnsupportedVersion
)

func (k Kind) String() string {
	switch k {
	case KindExpired:
		return "EXPIRED"
	case KindMalformed:
		return "MALFORMED"
	case KindSignatureInvalid:
		return "SIGNATURE_INVALID"
	case KindUnsupportedVersion:
		return "UNSUPPORTED_VERSION"
	default:
		return "UNKNOWN"
	}
}

// VerificationError is the typed decode failure returned by Codec.Decode.
type VerificationError struct {
	Kind Kind
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("access token verification failed: %s", e.Kind)
	}
	return fmt.Sprintf("access token verification failed: %s: %v", e.Kind, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
