package resources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirforce/devops-mcp/internal/audit"
	"github.com/sirforce/devops-mcp/internal/config"
	"github.com/sirforce/devops-mcp/internal/metrics"
	"github.com/sirforce/devops-mcp/internal/tracing"
)

func newTestRegistry(t *testing.T) (*Registry, *metrics.Metrics, *audit.Logger) {
	t.Helper()
	cfg := config.Default()
	cfg.OrganizationURL = "https://dev.azure.com/contoso"
	cfg.Project = "Fabrikam"
	cfg.PAT = "abcdefghijklmnopqrstuvwxyz234567abcdefghijklmnopqrst"

	m := metrics.New(zap.NewNop())
	a := audit.NewLogger(zap.NewNop(), true)
	return NewRegistry(cfg, m, a, zap.NewNop(), "1.2.3", "session-1", []string{"query_work_items", "normalize_wiql"}), m, a
}

func read(t *testing.T, handler mcp.ResourceHandler, uri string) map[string]interface{} {
	t.Helper()
	result, err := handler(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, uri, result.Contents[0].URI)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &out))
	return out
}

func resourceByURI(t *testing.T, r *Registry, uri string) RegisteredResource {
	t.Helper()
	for _, res := range r.GetResources() {
		if res.Resource.URI == uri {
			return res
		}
	}
	t.Fatalf("resource %s not registered", uri)
	return RegisteredResource{}
}

func TestGetResources(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	resources := r.GetResources()
	require.Len(t, resources, 5)
	for _, res := range resources {
		assert.NotEmpty(t, res.Resource.Title, res.Resource.URI)
		assert.NotEmpty(t, res.Resource.Description, res.Resource.URI)
		assert.NotNil(t, res.Handler, res.Resource.URI)
	}
}

func TestAboutResource(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	out := read(t, resourceByURI(t, r, aboutURI).Handler, aboutURI)

	service := out["service"].(map[string]interface{})
	assert.Equal(t, "contoso", service["organization"])
	assert.Equal(t, "Fabrikam", service["project"])

	server := out["mcp_server"].(map[string]interface{})
	assert.Equal(t, "1.2.3", server["version"])
	assert.Equal(t, float64(2), server["tool_count"])

	shapingInfo := out["response_shaping"].(map[string]interface{})
	assert.Equal(t, float64(50), shapingInfo["item_threshold"])
}

func TestConfigResourceMasksCredentials(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	result, err := resourceByURI(t, r, configURI).Handler(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: configURI},
	})
	require.NoError(t, err)
	text := result.Contents[0].Text
	assert.NotContains(t, text, "abcdefghijklmnopqrstuvwxyz234567abcdefghijklmnopqrst")
	assert.Contains(t, text, `"auth_method": "pat"`)
	assert.Contains(t, text, "abcd...qrst")
}

func TestMetricsResource(t *testing.T) {
	r, m, a := newTestRegistry(t)
	m.RecordRequest(true, 20*time.Millisecond, 200)
	m.RecordShaping("summary", 1200)
	m.RecordNormalization(2)
	a.Log(context.Background(), audit.Entry{Tool: "query_work_items", Operation: "query", Success: true, ResponseMode: "summary"})

	out := read(t, resourceByURI(t, r, metricsURI).Handler, metricsURI)

	requests := out["requests"].(map[string]interface{})
	assert.Equal(t, float64(1), requests["total"])

	shapingInfo := out["shaping"].(map[string]interface{})
	assert.Equal(t, float64(2), shapingInfo["field_corrections"])
	assert.Equal(t, float64(1), shapingInfo["modes"].(map[string]interface{})["summary"])

	auditInfo := out["audit"].(map[string]interface{})
	assert.Len(t, auditInfo["recent"], 1)
}

func TestSessionResource(t *testing.T) {
	r, _, a := newTestRegistry(t)

	out := read(t, resourceByURI(t, r, sessionURI).Handler, sessionURI)
	assert.Equal(t, "session-1", out["session_id"])
	assert.Equal(t, true, out["audit_enabled"])
	assert.Equal(t, float64(0), out["count"])
	assert.Empty(t, out["entries"])

	mine := tracing.WithSessionID(context.Background(), "session-1")
	a.Log(mine, audit.Entry{Tool: "query_work_items", Operation: "query", Success: true, ResponseMode: "summary"})
	a.Log(tracing.WithSessionID(context.Background(), "session-2"), audit.Entry{Tool: "get_work_items", Operation: "read", Success: true})
	a.Log(mine, audit.Entry{Tool: "aggregate_work_items", Operation: "aggregate", ErrorCode: "MISSING_PARAMETER"})

	out = read(t, resourceByURI(t, r, sessionURI).Handler, sessionURI)
	assert.Equal(t, float64(2), out["count"])
	entries := out["entries"].([]interface{})
	require.Len(t, entries, 2)
	assert.Equal(t, "query_work_items", entries[0].(map[string]interface{})["tool"])
	assert.Equal(t, "MISSING_PARAMETER", entries[1].(map[string]interface{})["error_code"])
}

func TestSessionResourceAuditDisabled(t *testing.T) {
	cfg := config.Default()
	r := NewRegistry(cfg, metrics.New(zap.NewNop()), audit.NewLogger(zap.NewNop(), false), zap.NewNop(), "1.2.3", "session-1", nil)

	out := read(t, resourceByURI(t, r, sessionURI).Handler, sessionURI)
	assert.Equal(t, false, out["audit_enabled"])
	assert.Empty(t, out["entries"])
}

func TestAliasesResource(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	out := read(t, resourceByURI(t, r, aliasesURI).Handler, aliasesURI)

	assert.Equal(t, "System", out["default_namespace"])
	aliases := out["aliases"].([]interface{})
	require.NotEmpty(t, aliases)

	found := false
	for _, a := range aliases {
		entry := a.(map[string]interface{})
		if entry["alias"] == "StoryPoints" {
			assert.Equal(t, "Microsoft.VSTS.Scheduling.StoryPoints", entry["canonical"])
			found = true
		}
	}
	assert.True(t, found)
}

func TestFieldTemplate(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.Len(t, r.GetResourceTemplates(), 1)
	handler := r.GetTemplateHandler()

	tests := []struct {
		uri       string
		reference string
		rewritten bool
		identity  bool
	}{
		{"fields://resolve/StoryPoints", "Microsoft.VSTS.Scheduling.StoryPoints", true, false},
		{"fields://resolve/System.StoryPoints", "Microsoft.VSTS.Scheduling.StoryPoints", true, false},
		{"fields://resolve/assignedto", "System.AssignedTo", true, true},
		{"fields://resolve/Custom.Risk", "Custom.Risk", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			out := read(t, handler, tt.uri)
			assert.Equal(t, tt.reference, out["reference"])
			assert.Equal(t, tt.rewritten, out["rewritten"])
			assert.Equal(t, tt.identity, out["identity"])
		})
	}

	out := read(t, handler, "fields://other")
	assert.Equal(t, "Unknown template", out["error"])
}
