// Package auth adds Azure DevOps credentials to outgoing requests.
package auth

import (
	"fmt"
	"net/http"

	"github.com/IBM/go-sdk-core/v5/core"
	"go.uber.org/zap"
)

// patUsername is sent with personal access tokens. Azure DevOps ignores the
// basic-auth username, but the authenticator requires one.
const patUsername = "pat"

// Credentials selects how requests are authenticated. A PAT takes precedence
// over a bearer token when both are set.
type Credentials struct {
	PAT         string
	BearerToken string
}

// Authenticator handles Azure DevOps authentication
type Authenticator struct {
	authenticator core.Authenticator
	logger        *zap.Logger
}

// New creates a new authenticator using the IBM SDK core authenticators
func New(creds Credentials, logger *zap.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		authenticator core.Authenticator
		err           error
	)
	switch {
	case creds.PAT != "":
		authenticator, err = core.NewBasicAuthenticator(patUsername, creds.PAT)
	case creds.BearerToken != "":
		authenticator, err = core.NewBearerTokenAuthenticator(creds.BearerToken)
	default:
		return nil, fmt.Errorf("a personal access token or bearer token is required")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	if err := authenticator.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate authenticator: %w", err)
	}

	logger.Info("Azure DevOps authenticator initialized",
		zap.String("type", authenticator.AuthenticationType()))

	return &Authenticator{
		authenticator: authenticator,
		logger:        logger,
	}, nil
}

// Authenticate adds authentication to an HTTP request
func (a *Authenticator) Authenticate(req *http.Request) error {
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}

	if err := a.authenticator.Authenticate(req); err != nil {
		a.logger.Error("Authentication failed", zap.Error(err))
		return fmt.Errorf("authentication failed: %w", err)
	}

	return nil
}

// Type returns the authentication scheme in use ("basic" or "bearerToken").
func (a *Authenticator) Type() string {
	return a.authenticator.AuthenticationType()
}

// ValidateToken checks the configured credential is well formed. It does not
// contact Azure DevOps; the client's connection check does that.
func (a *Authenticator) ValidateToken() error {
	return a.authenticator.Validate()
}
