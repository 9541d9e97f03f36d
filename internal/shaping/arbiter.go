package shaping

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
)

// Default shaping thresholds.
const (
	DefaultItemThreshold  = 50
	DefaultSoftLimitBytes = 100_000
	DefaultHardLimitBytes = 200_000
)

// Limits are the thresholds the arbiter measures a result against. Byte limits
// apply to the UTF-8 length of the canonical JSON serialization.
type Limits struct {
	ItemThreshold  int `json:"item_threshold" yaml:"item_threshold"`
	SoftLimitBytes int `json:"soft_limit_bytes" yaml:"soft_limit_bytes"`
	HardLimitBytes int `json:"hard_limit_bytes" yaml:"hard_limit_bytes"`
}

// DefaultLimits returns the stock thresholds.
func DefaultLimits() Limits {
	return Limits{
		ItemThreshold:  DefaultItemThreshold,
		SoftLimitBytes: DefaultSoftLimitBytes,
		HardLimitBytes: DefaultHardLimitBytes,
	}
}

// Validate checks that the limits are positive and ordered.
func (l Limits) Validate() error {
	if l.ItemThreshold <= 0 {
		return fmt.Errorf("item threshold must be positive, got %d", l.ItemThreshold)
	}
	if l.SoftLimitBytes <= 0 || l.HardLimitBytes <= 0 {
		return fmt.Errorf("byte limits must be positive (soft=%d, hard=%d)", l.SoftLimitBytes, l.HardLimitBytes)
	}
	if l.SoftLimitBytes > l.HardLimitBytes {
		return fmt.Errorf("soft limit %d exceeds hard limit %d", l.SoftLimitBytes, l.HardLimitBytes)
	}
	return nil
}

// Format is the caller's requested output format.
type Format string

// Output formats.
const (
	FormatAuto    Format = "auto"
	FormatJSON    Format = "json"
	FormatSummary Format = "summary"
)

// ParseFormat parses a format token. The empty string means auto.
func ParseFormat(token string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(token))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatJSON, FormatSummary:
		return f, nil
	default:
		return "", mcperrors.NewInvalidInput(fmt.Sprintf("unknown format %q", token)).
			WithSuggestion("Use one of: auto, json, summary")
	}
}

// Mode names the response shape the arbiter produced.
type Mode string

// Response modes.
const (
	ModeTruncatedSummary Mode = "truncated_summary"
	ModeSummary          Mode = "summary"
	ModeSizeWarning      Mode = "size_warning"
	ModeRaw              Mode = "raw"
	ModeAggregation      Mode = "aggregation"
)

// Remediation hints attached to oversized responses.
var remediationHints = []string{
	"Set compact=true to reduce identity fields to display names",
	"Use page and page_size to fetch the result in smaller windows",
	"Use aggregate_work_items for counts and story point totals instead of raw records",
}

// Recorder receives one observation per shaping decision.
type Recorder interface {
	RecordShaping(mode string, bytes int)
}

// ShapeRequest carries fetched records and caller flags into the arbiter.
type ShapeRequest struct {
	Items   []WorkItem
	Format  Format
	Force   bool
	GroupBy string
	Page    *Page
}

// ResponseMetadata describes which path the arbiter took.
type ResponseMetadata struct {
	Mode           Mode     `json:"mode"`
	Truncated      bool     `json:"truncated"`
	Reason         string   `json:"reason,omitempty"`
	EstimatedBytes int      `json:"estimated_bytes"`
	ItemCount      int      `json:"item_count"`
	Hints          []string `json:"hints,omitempty"`
	Pagination     *Page    `json:"pagination,omitempty"`
}

// Response is a shaped payload. Metadata is nil for verbatim raw JSON.
type Response struct {
	Text     string
	Metadata *ResponseMetadata
}

// envelope is the canonical JSON form of a work item result.
type envelope struct {
	Count      int        `json:"count"`
	Value      []WorkItem `json:"value"`
	Pagination *Page      `json:"pagination,omitempty"`
}

type decisionInput struct {
	req    ShapeRequest
	limits Limits
	body   []byte
	size   int
	count  int
}

type shapingRule struct {
	mode    Mode
	matches func(in decisionInput) bool
	build   func(in decisionInput) *Response
}

// shapingRules are evaluated in order; the first match wins.
var shapingRules = []shapingRule{
	{
		mode: ModeTruncatedSummary,
		matches: func(in decisionInput) bool {
			return in.size > in.limits.HardLimitBytes && in.req.Format != FormatJSON && !in.req.Force
		},
		build: func(in decisionInput) *Response {
			return &Response{
				Text: RenderSummary(in.req.Items, in.req.GroupBy),
				Metadata: &ResponseMetadata{
					Mode:           ModeTruncatedSummary,
					Truncated:      true,
					Reason:         fmt.Sprintf("result is %d bytes, above the %d byte hard limit", in.size, in.limits.HardLimitBytes),
					EstimatedBytes: in.size,
					ItemCount:      in.count,
					Hints:          hints(),
					Pagination:     in.req.Page,
				},
			}
		},
	},
	{
		mode: ModeSummary,
		matches: func(in decisionInput) bool {
			if in.req.Format == FormatJSON {
				return false
			}
			return in.req.Format == FormatSummary ||
				in.count > in.limits.ItemThreshold ||
				in.size > in.limits.SoftLimitBytes
		},
		build: func(in decisionInput) *Response {
			return &Response{
				Text: RenderSummary(in.req.Items, in.req.GroupBy),
				Metadata: &ResponseMetadata{
					Mode:           ModeSummary,
					Reason:         summaryReason(in),
					EstimatedBytes: in.size,
					ItemCount:      in.count,
					Hints:          []string{"Pass format=json to receive the full JSON records"},
					Pagination:     in.req.Page,
				},
			}
		},
	},
	{
		mode: ModeSizeWarning,
		matches: func(in decisionInput) bool {
			return in.size > in.limits.SoftLimitBytes
		},
		build: func(in decisionInput) *Response {
			return &Response{
				Text: string(in.body),
				Metadata: &ResponseMetadata{
					Mode:           ModeSizeWarning,
					Reason:         fmt.Sprintf("result is %d bytes, above the %d byte soft limit", in.size, in.limits.SoftLimitBytes),
					EstimatedBytes: in.size,
					ItemCount:      in.count,
					Hints:          hints(),
				},
			}
		},
	},
	{
		mode:    ModeRaw,
		matches: func(decisionInput) bool { return true },
		build: func(in decisionInput) *Response {
			return &Response{Text: string(in.body)}
		},
	},
}

func hints() []string {
	out := make([]string, len(remediationHints))
	copy(out, remediationHints)
	return out
}

func summaryReason(in decisionInput) string {
	switch {
	case in.req.Format == FormatSummary:
		return "summary format requested"
	case in.count > in.limits.ItemThreshold:
		return fmt.Sprintf("%d items exceed the %d item threshold", in.count, in.limits.ItemThreshold)
	default:
		return fmt.Sprintf("result is %d bytes, above the %d byte soft limit", in.size, in.limits.SoftLimitBytes)
	}
}

// Arbiter picks the response shape for a fetched result. It holds no
// per-request state and is safe for concurrent use.
type Arbiter struct {
	limits   Limits
	recorder Recorder
	logger   *zap.Logger
}

// NewArbiter creates an arbiter. recorder may be nil.
func NewArbiter(limits Limits, recorder Recorder, logger *zap.Logger) *Arbiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arbiter{
		limits:   limits,
		recorder: recorder,
		logger:   logger,
	}
}

// Limits returns the thresholds in use.
func (a *Arbiter) Limits() Limits {
	return a.limits
}

// MeasureItems returns the canonical serialization of items and its byte size.
func MeasureItems(items []WorkItem, page *Page) ([]byte, error) {
	if items == nil {
		items = []WorkItem{}
	}
	body, err := json.MarshalIndent(envelope{
		Count:      len(items),
		Value:      items,
		Pagination: page,
	}, "", "  ")
	if err != nil {
		return nil, mcperrors.NewInternalError(fmt.Sprintf("failed to serialize work items: %v", err))
	}
	return body, nil
}

// ShapeWorkItems serializes the request's items and returns the first response
// shape whose rule matches.
func (a *Arbiter) ShapeWorkItems(req ShapeRequest) (*Response, error) {
	if req.Format == "" {
		req.Format = FormatAuto
	}
	body, err := MeasureItems(req.Items, req.Page)
	if err != nil {
		return nil, err
	}

	in := decisionInput{
		req:    req,
		limits: a.limits,
		body:   body,
		size:   len(body),
		count:  len(req.Items),
	}
	for _, rule := range shapingRules {
		if !rule.matches(in) {
			continue
		}
		a.observe(rule.mode, in.size, in.count)
		return rule.build(in), nil
	}
	// The final rule always matches.
	return nil, mcperrors.NewInternalError("no shaping rule matched")
}

// ShapeAggregation computes the statistics for kind and returns them as JSON.
// field is only consulted for by_field.
func (a *Arbiter) ShapeAggregation(items []WorkItem, kind AggregationKind, field string) (*Response, error) {
	var result interface{}
	switch kind {
	case AggregateContributorsKind:
		result = AggregateContributors(items)
	case AggregateByField:
		result = AggregateByFieldValue(items, field)
	default:
		groupField := GroupFieldForKind(kind)
		if groupField == "" {
			return nil, mcperrors.NewInvalidInput(fmt.Sprintf("unknown aggregation type %q", kind))
		}
		r := AggregateByFieldValue(items, groupField)
		r.Type = kind
		result = r
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize aggregation: %w", err)
	}
	a.observe(ModeAggregation, len(body), len(items))
	return &Response{Text: string(body)}, nil
}

func (a *Arbiter) observe(mode Mode, size, count int) {
	a.logger.Debug("Response shaped",
		zap.String("mode", string(mode)),
		zap.Int("bytes", size),
		zap.Int("items", count),
	)
	if a.recorder != nil {
		a.recorder.RecordShaping(string(mode), size)
	}
}
