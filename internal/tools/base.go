package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sirforce/devops-mcp/internal/client"
	"github.com/sirforce/devops-mcp/internal/shaping"
)

// WorkItemClient is the subset of the Azure DevOps client the tools call.
type WorkItemClient interface {
	FetchWorkItems(ctx context.Context, project string, ids []int, fields []string) (*client.WorkItemBatch, error)
	RunQuery(ctx context.Context, project, wiql string, top int) (*client.QueryResult, error)
	CreateWorkItem(ctx context.Context, project, workItemType string, fields map[string]interface{}) (*shaping.WorkItem, error)
	UpdateWorkItem(ctx context.Context, project string, id int, fields map[string]interface{}) (*shaping.WorkItem, error)
	AddComment(ctx context.Context, project string, id int, text string) (*client.Comment, error)
}

// NormalizationRecorder counts WIQL field corrections.
type NormalizationRecorder interface {
	RecordNormalization(corrections int)
}

// Defaults are server-wide fallbacks for optional tool arguments.
type Defaults struct {
	Project         string
	PageSize        int
	MaxQueryResults int
	Compact         bool
	QueryTimeout    time.Duration
}

// Dependencies bundles what every tool needs.
type Dependencies struct {
	Client     WorkItemClient
	Arbiter    *shaping.Arbiter
	Normalizer *shaping.Normalizer
	Recorder   NormalizationRecorder
	Defaults   Defaults
	Logger     *zap.Logger
}

// BaseTool provides common functionality for all tools
type BaseTool struct {
	client     WorkItemClient
	arbiter    *shaping.Arbiter
	normalizer *shaping.Normalizer
	recorder   NormalizationRecorder
	defaults   Defaults
	logger     *zap.Logger
}

// NewBaseTool creates a new base tool
func NewBaseTool(deps Dependencies) *BaseTool {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	arbiter := deps.Arbiter
	if arbiter == nil {
		arbiter = shaping.NewArbiter(shaping.DefaultLimits(), nil, logger)
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = shaping.NewNormalizer(logger)
	}
	return &BaseTool{
		client:     deps.Client,
		arbiter:    arbiter,
		normalizer: normalizer,
		recorder:   deps.Recorder,
		defaults:   deps.Defaults,
		logger:     logger,
	}
}

// queryTimeout is the per-call budget for read tools.
func (t *BaseTool) queryTimeout() time.Duration {
	if t.defaults.QueryTimeout > 0 {
		return t.defaults.QueryTimeout
	}
	return QueryTimeout
}

// project returns the project argument, or the configured default.
func (t *BaseTool) project(arguments map[string]interface{}) (string, error) {
	p, err := GetStringParam(arguments, "project", false)
	if err != nil {
		return "", err
	}
	if p = strings.TrimSpace(p); p != "" {
		return p, nil
	}
	return t.defaults.Project, nil
}

// normalize rewrites WIQL field references and records how many were fixed.
func (t *BaseTool) normalize(wiql string) shaping.NormalizeResult {
	result := t.normalizer.Normalize(wiql)
	if t.recorder != nil {
		t.recorder.RecordNormalization(result.Corrections)
	}
	return result
}

// compactFlag reads the compact argument, falling back to the configured default.
func (t *BaseTool) compactFlag(arguments map[string]interface{}) (bool, error) {
	if _, ok := arguments["compact"]; !ok {
		return t.defaults.Compact, nil
	}
	return GetBoolParam(arguments, "compact", false)
}

// FormatResponse marshals v as indented JSON text content.
func (t *BaseTool) FormatResponse(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(jsonBytes)}},
	}, nil
}

// FormatShaped converts a shaping decision into tool content. The body comes
// first; metadata, when present, follows as a second JSON block so the caller
// can tell a truncated summary from a requested one.
func (t *BaseTool) FormatShaped(resp *shaping.Response) (*mcp.CallToolResult, error) {
	content := []mcp.Content{&mcp.TextContent{Text: resp.Text}}
	if resp.Metadata != nil {
		meta, err := json.MarshalIndent(map[string]interface{}{"_shaping": resp.Metadata}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to format shaping metadata: %w", err)
		}
		content = append(content, &mcp.TextContent{Text: string(meta)})
	}
	return &mcp.CallToolResult{Content: content}, nil
}
