package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sirforce/devops-mcp/internal/client"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// slowThreshold marks a reachable but sluggish organization as degraded.
const slowThreshold = 3 * time.Second

// Check represents a health check result
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// ConnectionChecker reaches the organization with the configured credentials.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) (*client.ConnectionData, error)
}

// TokenValidator checks credentials locally without a network call.
type TokenValidator interface {
	ValidateToken() error
}

// Checker performs health checks
type Checker struct {
	conn      ConnectionChecker
	validator TokenValidator
	logger    *zap.Logger
}

// New creates a new health checker
func New(conn ConnectionChecker, validator TokenValidator, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		conn:      conn,
		validator: validator,
		logger:    logger,
	}
}

// CheckAll performs all health checks
func (c *Checker) CheckAll(ctx context.Context) (Status, []Check) {
	checks := []Check{
		c.checkAuthentication(),
		c.checkConnectivity(ctx),
	}

	overallStatus := StatusHealthy
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return overallStatus, checks
}

func (c *Checker) checkAuthentication() Check {
	start := time.Now()
	check := Check{
		Name:      "authentication",
		Timestamp: start,
	}

	var err error
	if c.validator != nil {
		err = c.validator.ValidateToken()
	}
	check.Duration = time.Since(start)

	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Credentials invalid: %v", err)
		c.logger.Error("Health check failed: authentication", zap.Error(err))
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Credentials present"
	return check
}

// checkConnectivity calls connectionData on the organization
func (c *Checker) checkConnectivity(ctx context.Context) Check {
	start := time.Now()
	check := Check{
		Name:      "organization_connectivity",
		Timestamp: start,
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := c.conn.CheckConnection(checkCtx)
	check.Duration = time.Since(start)

	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Organization unreachable: %v", err)
		c.logger.Warn("Health check failed: organization connectivity",
			zap.Error(err),
			zap.Duration("duration", check.Duration),
		)
	case check.Duration > slowThreshold:
		check.Status = StatusDegraded
		check.Message = "Organization responding slowly"
	default:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("Connected as %s", data.AuthenticatedUser.ProviderDisplayName)
		c.logger.Debug("Health check passed: organization connectivity",
			zap.Duration("duration", check.Duration),
		)
	}

	return check
}
