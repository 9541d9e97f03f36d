// Package server provides the MCP server implementation for Azure DevOps work items.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sirforce/devops-mcp/internal/audit"
	"github.com/sirforce/devops-mcp/internal/auth"
	"github.com/sirforce/devops-mcp/internal/client"
	"github.com/sirforce/devops-mcp/internal/config"
	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
	"github.com/sirforce/devops-mcp/internal/health"
	"github.com/sirforce/devops-mcp/internal/metrics"
	"github.com/sirforce/devops-mcp/internal/prompts"
	"github.com/sirforce/devops-mcp/internal/resources"
	"github.com/sirforce/devops-mcp/internal/security"
	"github.com/sirforce/devops-mcp/internal/shaping"
	"github.com/sirforce/devops-mcp/internal/tools"
	"github.com/sirforce/devops-mcp/internal/tracing"
)

// toolOperations classify tools in audit entries.
var toolOperations = map[string]string{
	"query_work_items":      "query",
	"get_work_items":        "read",
	"aggregate_work_items":  "aggregate",
	"normalize_wiql":        "normalize",
	"create_work_item":      "create",
	"update_work_item":      "update",
	"add_work_item_comment": "comment",
}

// Server represents the MCP server
type Server struct {
	mcpServer     *mcp.Server
	apiClient     *client.Client
	config        *config.Config
	logger        *zap.Logger
	metrics       *metrics.Metrics
	audit         *audit.Logger
	version       string
	sessionID     string
	healthServer  *health.Server
	authenticator *auth.Authenticator
	tools         map[string]tools.Tool
	toolNames     []string
}

// New creates a new MCP server instance.
func New(cfg *config.Config, logger *zap.Logger, version string) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	authenticator, err := auth.New(auth.Credentials{PAT: cfg.PAT, BearerToken: cfg.BearerToken}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	metricsTracker := metrics.New(logger)

	apiClient, err := client.New(cfg, logger, version,
		client.WithAuthenticator(authenticator),
		client.WithRecorder(metricsTracker),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	// Create MCP server with tools, prompts, and resources capabilities
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "Azure DevOps Work Items MCP Server",
		Version: version,
	}, &mcp.ServerOptions{
		HasTools:     true,
		HasPrompts:   true,
		HasResources: true,
	})

	s := &Server{
		mcpServer:     mcpServer,
		apiClient:     apiClient,
		config:        cfg,
		logger:        logger,
		metrics:       metricsTracker,
		audit:         audit.NewLogger(logger, cfg.EnableAuditLog),
		version:       version,
		sessionID:     tracing.NewSessionID(),
		authenticator: authenticator,
		tools:         make(map[string]tools.Tool),
	}

	// Create health server if port is configured (port > 0)
	if cfg.HealthPort > 0 {
		var metricsHandler http.Handler
		if cfg.MetricsEndpoint {
			metricsHandler = metricsTracker.Handler()
		}
		healthChecker := health.New(apiClient, authenticator, logger)
		s.healthServer = health.NewServer(healthChecker, logger, cfg.HealthPort, cfg.HealthBindAddr, metricsHandler)
	}

	s.registerTools()
	s.registerPrompts()
	s.registerResources()

	return s, nil
}

// toolDependencies wires the shaping engine and client into the tools.
func (s *Server) toolDependencies() tools.Dependencies {
	return tools.Dependencies{
		Client:     s.apiClient,
		Arbiter:    shaping.NewArbiter(s.config.ShapingLimits(), s.metrics, s.logger.Named("shaping")),
		Normalizer: shaping.NewNormalizer(s.logger.Named("shaping")),
		Recorder:   s.metrics,
		Defaults: tools.Defaults{
			Project:         s.config.Project,
			PageSize:        s.config.DefaultPageSize,
			MaxQueryResults: s.config.MaxQueryResults,
			Compact:         s.config.CompactDefault,
			QueryTimeout:    s.config.QueryTimeout,
		},
		Logger: s.logger,
	}
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	for _, t := range tools.GetAllTools(s.toolDependencies()) {
		s.registerTool(t)
	}
	s.logger.Info("Registered all MCP tools", zap.Int("count", len(s.tools)))
}

// registerTool adds a tool to the MCP server with metrics, tracing and audit
// around every call.
func (s *Server) registerTool(t tools.Tool) {
	toolName := t.Name()
	s.tools[toolName] = t
	s.toolNames = append(s.toolNames, toolName)

	mcpTool := &mcp.Tool{
		Name:        toolName,
		Description: t.Description(),
		InputSchema: t.InputSchema(),
		Annotations: t.Annotations(),
	}

	handler := func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]interface{}
		if len(request.Params.Arguments) > 0 {
			if err := json.Unmarshal(request.Params.Arguments, &args); err != nil {
				s.metrics.RecordToolExecution(toolName, false, 0)
				return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
			}
		}
		return s.executeTool(ctx, t, args)
	}

	s.mcpServer.AddTool(mcpTool, handler)
	s.logger.Debug("Registered tool", zap.String("tool", toolName))
}

// executeTool runs one tool call under the tool's timeout and records the outcome.
func (s *Server) executeTool(ctx context.Context, t tools.Tool, args map[string]interface{}) (*mcp.CallToolResult, error) {
	toolName := t.Name()
	start := time.Now()

	if tracing.SessionID(ctx) == "" {
		ctx = tracing.WithSessionID(ctx, s.sessionID)
	}
	ctx, span := tracing.ToolSpan(ctx, toolName)
	defer span.End()
	tracing.AddToolAttributes(span, scalarArgs(args))

	timeout := t.DefaultTimeout()
	if timeout <= 0 {
		timeout = s.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := t.Execute(ctx, args)
	duration := time.Since(start)
	success := err == nil && (result == nil || !result.IsError)
	s.metrics.RecordToolExecution(toolName, success, duration)

	entry := audit.Entry{
		Tool:      toolName,
		Operation: toolOperations[toolName],
		Project:   s.projectArg(args),
		Success:   success,
		Duration:  duration,
	}
	if id, ok := args["id"]; ok {
		entry.ResourceID = fmt.Sprint(id)
	}

	switch {
	case err != nil:
		tracing.RecordError(span, err)
		entry.ErrorMsg = err.Error()
		if se, ok := mcperrors.As(err); ok {
			entry.ErrorCode = string(se.Code)
		}
	case result != nil && result.IsError:
		msg := firstText(result)
		tracing.RecordError(span, errors.New(msg))
		entry.ErrorMsg = msg
		entry.ErrorCode = errorCode(msg)
	default:
		tracing.SetSuccess(span)
		if meta := shapingMetadata(result); meta != nil {
			entry.ResponseMode = string(meta.Mode)
			entry.EstimatedBytes = meta.EstimatedBytes
			entry.ResultCount = meta.ItemCount
			tracing.SetShapingResult(span, entry.ResponseMode, entry.EstimatedBytes)
		}
	}
	s.audit.Log(ctx, entry)

	if !success {
		logFailure := s.logger.Debug
		if err != nil && !mcperrors.IsClientError(err) {
			logFailure = s.logger.Warn
		}
		logFailure("Tool call failed",
			zap.String("tool", toolName),
			zap.Duration("duration", duration),
			zap.String("error_code", entry.ErrorCode),
		)
	}
	return result, err
}

func (s *Server) projectArg(args map[string]interface{}) string {
	if p, ok := args["project"].(string); ok && strings.TrimSpace(p) != "" {
		return p
	}
	return s.config.Project
}

// spanArgOmit lists free-text arguments that stay out of span attributes.
var spanArgOmit = map[string]bool{"query": true, "title": true, "description": true, "text": true}

// scalarArgs keeps the scalar arguments that are useful as span attributes.
// Values under credential-like keys are masked.
func scalarArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for key, v := range args {
		if spanArgOmit[key] {
			continue
		}
		switch v.(type) {
		case string, bool, int, float64:
		default:
			continue
		}
		if security.IsSensitiveField(key) {
			v = security.Redacted
		}
		out[key] = v
	}
	return out
}

func firstText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// errorCode extracts CODE from a "[CODE] message" tool error.
func errorCode(msg string) string {
	if !strings.HasPrefix(msg, "[") {
		return ""
	}
	if end := strings.Index(msg, "]"); end > 1 {
		return msg[1:end]
	}
	return ""
}

// shapingMetadata finds the _shaping block a tool appended to its result.
// Raw responses carry none.
func shapingMetadata(result *mcp.CallToolResult) *shaping.ResponseMetadata {
	if result == nil {
		return nil
	}
	for _, c := range result.Content {
		tc, ok := c.(*mcp.TextContent)
		if !ok || !strings.Contains(tc.Text, `"_shaping"`) {
			continue
		}
		var wrapper struct {
			Shaping *shaping.ResponseMetadata `json:"_shaping"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &wrapper); err == nil && wrapper.Shaping != nil {
			return wrapper.Shaping
		}
	}
	return nil
}

// registerPrompts registers all available MCP prompts
func (s *Server) registerPrompts() {
	registry := prompts.NewRegistry(s.logger, s.config.Project)

	for _, p := range registry.GetPrompts() {
		s.mcpServer.AddPrompt(p.Prompt, p.Handler)
		s.logger.Debug("Registered prompt", zap.String("prompt", p.Prompt.Name))
	}

	s.logger.Info("Registered all MCP prompts", zap.Int("count", len(registry.GetPrompts())))
}

// registerResources registers all available MCP resources and resource templates
func (s *Server) registerResources() {
	registry := resources.NewRegistry(s.config, s.metrics, s.audit, s.logger, s.version, s.sessionID, s.toolNames)

	for _, r := range registry.GetResources() {
		s.mcpServer.AddResource(r.Resource, r.Handler)
		s.logger.Debug("Registered resource", zap.String("uri", r.Resource.URI))
	}

	templateHandler := registry.GetTemplateHandler()
	for _, t := range registry.GetResourceTemplates() {
		s.mcpServer.AddResourceTemplate(&t, templateHandler)
		s.logger.Debug("Registered resource template", zap.String("uri_template", t.URITemplate))
	}

	s.logger.Info("Registered all MCP resources",
		zap.Int("static_count", len(registry.GetResources())),
		zap.Int("template_count", len(registry.GetResourceTemplates())),
	)
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP server",
		zap.String("organization", s.config.Organization()),
		zap.String("project", s.config.Project),
		zap.String("auth", s.authenticator.Type()),
	)

	// Start health HTTP server in background if configured
	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil {
				s.logger.Error("Health server error", zap.Error(err))
			}
		}()
		s.healthServer.SetReady(true)
	}

	defer s.shutdown()

	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) shutdown() {
	s.metrics.LogStats()
	if s.audit.IsEnabled() {
		s.logger.Info("Audit summary", zap.String("stats", s.audit.GetStats().ToJSON()))
	}

	if s.healthServer != nil {
		s.healthServer.SetReady(false)
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.healthServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown health server", zap.Error(err))
		}
	}

	if err := s.apiClient.Close(); err != nil {
		s.logger.Error("Failed to close API client", zap.Error(err))
	}
}
