package oauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrStateInvalid indicates a state value that was not issued by this service.
	ErrStateInvalid = errors.New("invalid oauth state")
	// ErrStateExpired indicates a state value older than the configured max age.
	ErrStateExpired = errors.New("oauth state expired")
	// ErrStateReplayed indicates a state value whose nonce was already spent by an earlier callback.
	ErrStateReplayed = errors.New("oauth state already used")
)

const stateIssuer = "synclink"

// State is the CSRF binding round-tripped through the provider redirect.
type State struct {
	TenantID string
	Provider string
	Nonce    string
	IssuedAt time.Time
	Params   map[string]string
}

type stateClaims struct {
	Tenant   string            `json:"tnt"`
	Provider string            `json:"prv"`
	Params   map[string]string `json:"prm,omitempty"`
	jwt.RegisteredClaims
}

// StateCodec signs and verifies state values.
type StateCodec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewStateCodec(secret string, maxAge time.Duration) *StateCodec {
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &StateCodec{secret: []byte(secret), maxAge: maxAge, now: time.Now}
}

// Encode issues a signed state for tenant and provider with a fresh nonce.
func (c *StateCodec) Encode(tenantID, provider string, params map[string]string) (string, State, error) {
	issued := c.now().UTC().Truncate(time.Second)
	state := State{
		TenantID: tenantID,
		Provider: provider,
		Nonce:    uuid.NewString(),
		IssuedAt: issued,
		Params:   params,
	}
	claims := stateClaims{
		Tenant:   tenantID,
		Provider: provider,
		Params:   params,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        state.Nonce,
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(c.maxAge)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", State{}, fmt.Errorf("sign state: %w", err)
	}
	return signed, state, nil
}

// Decode verifies the signature and age of raw and returns its contents.
func (c *StateCodec) Decode(raw string) (State, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return State{}, ErrStateInvalid
	}
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return State{}, ErrStateExpired
	}
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrStateInvalid, err)
	}
	if claims.Tenant == "" || claims.Provider == "" || claims.ID == "" {
		return State{}, ErrStateInvalid
	}
	state := State{
		TenantID: claims.Tenant,
		Provider: claims.Provider,
		Nonce:    claims.ID,
		Params:   claims.Params,
	}
	if claims.IssuedAt != nil {
		state.IssuedAt = claims.IssuedAt.Time
	}
	return state, nil
}
