package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
	"github.com/sirforce/devops-mcp/internal/security"
	"github.com/sirforce/devops-mcp/internal/shaping"
)

// MaxBatchSize is the largest number of ids the work items endpoint accepts in
// a single request.
const MaxBatchSize = 200

const (
	jsonPatchContentType = "application/json-patch+json"
	commentsAPIVersion   = "7.1-preview.4"
)

// WorkItemBatch is the concatenated result of one or more batch fetches.
type WorkItemBatch struct {
	Count int                `json:"count"`
	Value []shaping.WorkItem `json:"value"`
}

// QueryResult holds the ids a WIQL query matched, in result order.
type QueryResult struct {
	QueryType string `json:"queryType"`
	AsOf      string `json:"asOf,omitempty"`
	IDs       []int  `json:"ids"`
}

// Comment is a discussion entry on a work item.
type Comment struct {
	ID          int                    `json:"id"`
	WorkItemID  int                    `json:"workItemId"`
	Text        string                 `json:"text"`
	CreatedBy   map[string]interface{} `json:"createdBy,omitempty"`
	CreatedDate string                 `json:"createdDate,omitempty"`
	URL         string                 `json:"url,omitempty"`
}

// ConnectionData identifies the authenticated user of the organization.
type ConnectionData struct {
	InstanceID        string `json:"instanceId"`
	AuthenticatedUser struct {
		ID                  string `json:"id"`
		ProviderDisplayName string `json:"providerDisplayName"`
	} `json:"authenticatedUser"`
}

// PatchOperation is a single JSON Patch operation on a work item.
type PatchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// FieldPatch builds "add" operations for each field, ordered by field name.
func FieldPatch(fields map[string]interface{}) []PatchOperation {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	ops := make([]PatchOperation, 0, len(names))
	for _, name := range names {
		ops = append(ops, PatchOperation{Op: "add", Path: "/fields/" + name, Value: fields[name]})
	}
	return ops
}

// FetchWorkItems retrieves work items by id. Ids are split into batches of
// MaxBatchSize, fetched one batch after another, and returned in the order the
// caller gave them. Ids the backend omits (deleted or not visible) are skipped.
func (c *Client) FetchWorkItems(ctx context.Context, project string, ids []int, fields []string) (*WorkItemBatch, error) {
	result := &WorkItemBatch{Value: make([]shaping.WorkItem, 0, len(ids))}
	if len(ids) == 0 {
		return result, nil
	}

	for start := 0; start < len(ids); start += MaxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+MaxBatchSize, len(ids))
		batch, err := c.fetchBatch(ctx, project, ids[start:end], fields)
		if err != nil {
			return nil, err
		}
		result.Value = append(result.Value, batch...)
	}

	result.Count = len(result.Value)
	if c.recorder != nil {
		c.recorder.RecordWorkItemsFetched(result.Count)
	}
	c.logger.Debug("Fetched work items",
		zap.Int("requested", len(ids)),
		zap.Int("returned", result.Count),
	)
	return result, nil
}

func (c *Client) fetchBatch(ctx context.Context, project string, ids []int, fields []string) ([]shaping.WorkItem, error) {
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = strconv.Itoa(id)
	}

	query := url.Values{}
	query.Set("ids", strings.Join(idStrings, ","))
	query.Set("errorPolicy", "omit")
	if len(fields) > 0 {
		query.Set("fields", strings.Join(fields, ","))
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   projectPath(project, "_apis/wit/workitems"),
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, apiError(resp)
	}

	var body struct {
		Value []*shaping.WorkItem `json:"value"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode work items: %w", err)
	}

	byID := make(map[int]shaping.WorkItem, len(body.Value))
	for _, item := range body.Value {
		if item != nil {
			byID[item.ID] = *item
		}
	}

	ordered := make([]shaping.WorkItem, 0, len(byID))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

// RunQuery executes a WIQL query and returns the matched ids. Link queries
// report their targets; the first occurrence of each id wins.
func (c *Client) RunQuery(ctx context.Context, project, wiql string, top int) (*QueryResult, error) {
	query := url.Values{}
	if top > 0 {
		query.Set("$top", strconv.Itoa(top))
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   projectPath(project, "_apis/wit/wiql"),
		Query:  query,
		Body:   map[string]string{"query": wiql},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		if resp.StatusCode == http.StatusBadRequest {
			return nil, mcperrors.NewInvalidQuery(backendMessage(resp))
		}
		return nil, apiError(resp)
	}

	var body struct {
		QueryType string `json:"queryType"`
		AsOf      string `json:"asOf"`
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
		WorkItemRelations []struct {
			Target *struct {
				ID int `json:"id"`
			} `json:"target"`
		} `json:"workItemRelations"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode query result: %w", err)
	}

	result := &QueryResult{QueryType: body.QueryType, AsOf: body.AsOf, IDs: []int{}}
	seen := make(map[int]struct{})
	add := func(id int) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		result.IDs = append(result.IDs, id)
	}
	for _, wi := range body.WorkItems {
		add(wi.ID)
	}
	for _, rel := range body.WorkItemRelations {
		if rel.Target != nil {
			add(rel.Target.ID)
		}
	}
	return result, nil
}

// CreateWorkItem creates a work item of the given type with the given fields.
func (c *Client) CreateWorkItem(ctx context.Context, project, workItemType string, fields map[string]interface{}) (*shaping.WorkItem, error) {
	if project == "" {
		return nil, mcperrors.NewMissingParameter("project")
	}
	resp, err := c.Do(ctx, &Request{
		Method:      http.MethodPost,
		Path:        projectPath(project, "_apis/wit/workitems/$"+url.PathEscape(workItemType)),
		Body:        FieldPatch(fields),
		ContentType: jsonPatchContentType,
	})
	if err != nil {
		return nil, err
	}
	return decodeWorkItem(resp)
}

// UpdateWorkItem sets the given fields on an existing work item.
func (c *Client) UpdateWorkItem(ctx context.Context, project string, id int, fields map[string]interface{}) (*shaping.WorkItem, error) {
	resp, err := c.Do(ctx, &Request{
		Method:      http.MethodPatch,
		Path:        projectPath(project, "_apis/wit/workitems/"+strconv.Itoa(id)),
		Body:        FieldPatch(fields),
		ContentType: jsonPatchContentType,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, mcperrors.NewResourceNotFound("work item", strconv.Itoa(id))
	}
	return decodeWorkItem(resp)
}

// AddComment appends a comment to a work item's discussion.
func (c *Client) AddComment(ctx context.Context, project string, id int, text string) (*Comment, error) {
	if project == "" {
		return nil, mcperrors.NewMissingParameter("project")
	}
	query := url.Values{}
	query.Set("api-version", commentsAPIVersion)

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   projectPath(project, "_apis/wit/workItems/"+strconv.Itoa(id)+"/comments"),
		Query:  query,
		Body:   map[string]string{"text": text},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, mcperrors.NewResourceNotFound("work item", strconv.Itoa(id))
	}
	if !resp.OK() {
		return nil, apiError(resp)
	}

	var comment Comment
	if err := json.Unmarshal(resp.Body, &comment); err != nil {
		return nil, fmt.Errorf("failed to decode comment: %w", err)
	}
	return &comment, nil
}

// CheckConnection verifies the organization is reachable with the configured
// credentials.
func (c *Client) CheckConnection(ctx context.Context) (*ConnectionData, error) {
	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   "_apis/connectionData",
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, apiError(resp)
	}

	var data ConnectionData
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode connection data: %w", err)
	}
	return &data, nil
}

func decodeWorkItem(resp *Response) (*shaping.WorkItem, error) {
	if !resp.OK() {
		return nil, apiError(resp)
	}
	var item shaping.WorkItem
	if err := json.Unmarshal(resp.Body, &item); err != nil {
		return nil, fmt.Errorf("failed to decode work item: %w", err)
	}
	return &item, nil
}

// projectPath scopes an API path to a project. Without a project the call is
// organization-wide.
func projectPath(project, path string) string {
	if project == "" {
		return path
	}
	return url.PathEscape(project) + "/" + path
}

func apiError(resp *Response) error {
	return mcperrors.FromHTTPStatus(resp.StatusCode, backendMessage(resp))
}

// backendMessage extracts the "message" field of an error body, falling back
// to the raw body. Credentials are masked either way.
func backendMessage(resp *Response) string {
	var body struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(resp.Body))
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Message != "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return security.MaskSensitiveData(msg)
}
