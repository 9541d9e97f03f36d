// Package resources provides MCP resource handlers for the Azure DevOps server.
// Resources expose read-only data to MCP clients for context and status information.
package resources

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sirforce/devops-mcp/internal/audit"
	"github.com/sirforce/devops-mcp/internal/config"
	"github.com/sirforce/devops-mcp/internal/metrics"
	"github.com/sirforce/devops-mcp/internal/shaping"
)

const (
	aboutURI          = "about://service"
	configURI         = "config://current"
	metricsURI        = "metrics://server"
	aliasesURI        = "fields://aliases"
	sessionURI        = "audit://session"
	fieldTemplatePath = "fields://resolve/"

	recentAuditEntries = 20
)

// Registry holds all registered resources and their handlers
type Registry struct {
	config    *config.Config
	metrics   *metrics.Metrics
	audit     *audit.Logger
	logger    *zap.Logger
	version   string
	sessionID string
	toolNames []string
}

// NewRegistry creates a new resource registry. auditLogger may be nil.
// sessionID selects the audit entries published by audit://session.
func NewRegistry(cfg *config.Config, m *metrics.Metrics, auditLogger *audit.Logger, logger *zap.Logger, version, sessionID string, toolNames []string) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		config:    cfg,
		metrics:   m,
		audit:     auditLogger,
		logger:    logger,
		version:   version,
		sessionID: sessionID,
		toolNames: toolNames,
	}
}

// RegisteredResource represents a resource with its definition and handler
type RegisteredResource struct {
	Resource *mcp.Resource
	Handler  mcp.ResourceHandler
}

// GetResources returns all registered resources with their handlers
func (r *Registry) GetResources() []RegisteredResource {
	return []RegisteredResource{
		r.aboutResource(),
		r.configResource(),
		r.metricsResource(),
		r.sessionResource(),
		r.aliasesResource(),
	}
}

func (r *Registry) jsonResult(uri string, v interface{}) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.logger.Error("Failed to marshal resource", zap.String("uri", uri), zap.Error(err))
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}

// aboutResource returns the about://service resource
func (r *Registry) aboutResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         aboutURI,
			Name:        aboutURI,
			Title:       "About Azure DevOps Work Items",
			Description: "Service information, query language and response shaping behaviour",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			limits := r.config.ShapingLimits()
			aboutInfo := map[string]interface{}{
				"service": map[string]interface{}{
					"name":         "Azure DevOps Boards",
					"organization": r.config.Organization(),
					"project":      r.config.Project,
					"aliases":      []string{"Azure DevOps", "ADO", "AzDO", "VSTS", "Azure Boards"},
				},
				"query_language": map[string]interface{}{
					"name":    "WIQL",
					"type":    "SQL-like work item query language",
					"example": "SELECT [System.Id] FROM WorkItems WHERE [System.State] = 'Active' AND [System.AssignedTo] = @Me",
					"note":    "Bare field names such as [StoryPoints] are rewritten to reference names before the query is sent",
				},
				"response_shaping": map[string]interface{}{
					"item_threshold":   limits.ItemThreshold,
					"soft_limit_bytes": limits.SoftLimitBytes,
					"hard_limit_bytes": limits.HardLimitBytes,
					"default_page":     r.config.DefaultPageSize,
					"compact_default":  r.config.CompactDefault,
					"modes": []string{
						string(shaping.ModeRaw),
						string(shaping.ModeSizeWarning),
						string(shaping.ModeSummary),
						string(shaping.ModeTruncatedSummary),
					},
				},
				"mcp_server": map[string]interface{}{
					"version":      r.version,
					"tools":        r.toolNames,
					"tool_count":   len(r.toolNames),
					"capabilities": []string{"tools", "prompts", "resources"},
				},
			}
			return r.jsonResult(aboutURI, aboutInfo)
		},
	}
}

// configResource returns the config://current resource
func (r *Registry) configResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         configURI,
			Name:        configURI,
			Title:       "Server Configuration",
			Description: "Current server configuration (credentials masked)",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			safeConfig := map[string]interface{}{
				"config":         r.config.Redact(),
				"server_version": r.version,
				"auth_method":    authMethod(r.config),
			}
			return r.jsonResult(configURI, safeConfig)
		},
	}
}

func authMethod(cfg *config.Config) string {
	switch {
	case cfg.PAT != "":
		return "pat"
	case cfg.BearerToken != "":
		return "bearer"
	default:
		return "none"
	}
}

// metricsResource returns the metrics://server resource
func (r *Registry) metricsResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         metricsURI,
			Name:        metricsURI,
			Title:       "Server Metrics",
			Description: "Request counts, latency, tool usage, response shaping decisions and recent tool calls",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			stats := r.metrics.GetStats()

			metricsData := map[string]interface{}{
				"requests": map[string]interface{}{
					"total":      stats.TotalRequests,
					"successful": stats.SuccessfulRequests,
					"failed":     stats.FailedRequests,
					"retried":    stats.RetriedRequests,
				},
				"rate_limiting": map[string]interface{}{
					"hits": stats.RateLimitHits,
				},
				"latency": map[string]interface{}{
					"average_ms": stats.AverageLatency.Milliseconds(),
					"max_ms":     stats.MaxLatency.Milliseconds(),
					"min_ms":     stats.MinLatency.Milliseconds(),
				},
				"errors_by_status": stats.ErrorsByStatus,
				"tools": map[string]interface{}{
					"usage":   stats.ToolUsage,
					"errors":  stats.ToolErrors,
					"latency": formatToolLatency(stats.ToolLatency),
				},
				"shaping": map[string]interface{}{
					"modes":              stats.ShapingModes,
					"work_items_fetched": stats.WorkItemsFetched,
					"field_corrections":  stats.FieldCorrections,
				},
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}
			if r.audit != nil && r.audit.IsEnabled() {
				metricsData["audit"] = map[string]interface{}{
					"summary": r.audit.GetStats(),
					"recent":  r.audit.GetRecentEntries(recentAuditEntries),
				}
			}
			return r.jsonResult(metricsURI, metricsData)
		},
	}
}

// sessionResource lists the tool calls made in this server's session.
func (r *Registry) sessionResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         sessionURI,
			Name:        sessionURI,
			Title:       "Session History",
			Description: "Tool calls made in the current session, oldest first, with response modes and error codes",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			enabled := r.audit != nil && r.audit.IsEnabled()
			entries := []audit.Entry{}
			if enabled {
				if found := r.audit.GetEntriesBySession(r.sessionID); found != nil {
					entries = found
				}
			}
			return r.jsonResult(sessionURI, map[string]interface{}{
				"session_id":    r.sessionID,
				"audit_enabled": enabled,
				"count":         len(entries),
				"entries":       entries,
			})
		},
	}
}

// formatToolLatency converts time.Duration map to milliseconds for JSON
func formatToolLatency(latency map[string]time.Duration) map[string]int64 {
	result := make(map[string]int64, len(latency))
	for tool, duration := range latency {
		result[tool] = duration.Milliseconds()
	}
	return result
}

// aliasesResource publishes the field alias table used to repair WIQL.
func (r *Registry) aliasesResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         aliasesURI,
			Name:        aliasesURI,
			Title:       "WIQL Field Aliases",
			Description: "Bare field names and the reference names they are rewritten to. Read this before writing WIQL by hand.",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return r.jsonResult(aliasesURI, map[string]interface{}{
				"default_namespace": shaping.DefaultNamespace,
				"aliases":           shaping.FieldAliases(),
			})
		},
	}
}

// GetResourceTemplates returns parameterized resources.
func (r *Registry) GetResourceTemplates() []mcp.ResourceTemplate {
	return []mcp.ResourceTemplate{
		{
			URITemplate: fieldTemplatePath + "{name}",
			Name:        "Field Reference Lookup",
			Description: "Resolve a bare or mis-namespaced field name, e.g. fields://resolve/StoryPoints, to its reference name.",
			MIMEType:    "application/json",
		},
	}
}

// GetTemplateHandler returns a handler for resource templates
func (r *Registry) GetTemplateHandler() mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI

		var content map[string]interface{}
		if name, ok := strings.CutPrefix(uri, fieldTemplatePath); ok && name != "" {
			canonical := shaping.CanonicalField(name)
			content = map[string]interface{}{
				"name":      name,
				"reference": canonical,
				"rewritten": canonical != strings.TrimSpace(name),
				"identity":  shaping.IsIdentityField(canonical),
			}
		} else {
			content = map[string]interface{}{
				"error":               "Unknown template",
				"available_templates": []string{fieldTemplatePath + "{name}"},
			}
		}
		return r.jsonResult(uri, content)
	}
}
