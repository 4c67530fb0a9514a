package oauth

import (
	"errors"

	"github.com/fr0stylo/synclink/internal/app/domain"
)

var (
	// ErrConfiguration indicates the provider is unknown or has no client credentials.
	ErrConfiguration = errors.New("provider not configured")
	// ErrMissingParameter indicates caller input is incomplete or malformed.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrOAuthExchange indicates the provider rejected the code or the state did not verify.
	ErrOAuthExchange = errors.New("oauth exchange failed")
)

// ErrorKind classifies manager failures for transport-specific mapping.
type ErrorKind string

const (
	ErrorUnknown          ErrorKind = "unknown"
	ErrorConfiguration    ErrorKind = "configuration"
	ErrorMissingParameter ErrorKind = "missing_parameter"
	ErrorExchange         ErrorKind = "exchange_failed"
	ErrorReauthRequired   ErrorKind = "reauth_required"
	ErrorNotConnected     ErrorKind = "not_connected"
)

// ClassifyError maps an error returned by the manager to its kind.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorUnknown
	case errors.Is(err, ErrConfiguration):
		return ErrorConfiguration
	case errors.Is(err, ErrMissingParameter):
		return ErrorMissingParameter
	case errors.Is(err, ErrOAuthExchange):
		return ErrorExchange
	case errors.Is(err, domain.ErrReauthRequired):
		return ErrorReauthRequired
	case errors.Is(err, domain.ErrNotConnected):
		return ErrorNotConnected
	default:
		return ErrorUnknown
	}
}
