// Package audit records one entry per tool execution: which tool ran against
// which project, how the response was shaped, and whether it failed.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sirforce/devops-mcp/internal/security"
	"github.com/sirforce/devops-mcp/internal/tracing"
)

const defaultMaxEntries = 1000

// Entry represents a single audit log entry
type Entry struct {
	Timestamp      time.Time     `json:"timestamp"`
	SessionID      string        `json:"session_id,omitempty"`
	TraceID        string        `json:"trace_id,omitempty"`
	Tool           string        `json:"tool"`
	Operation      string        `json:"operation"` // query, read, aggregate, create, update, comment
	Project        string        `json:"project,omitempty"`
	ResourceID     string        `json:"resource_id,omitempty"`
	Success        bool          `json:"success"`
	Duration       time.Duration `json:"duration_ns"`
	ErrorCode      string        `json:"error_code,omitempty"`
	ErrorMsg       string        `json:"error_message,omitempty"`
	ResultCount    int           `json:"result_count,omitempty"`
	ResponseMode   string        `json:"response_mode,omitempty"`
	EstimatedBytes int           `json:"estimated_bytes,omitempty"`
}

// Logger handles audit logging
type Logger struct {
	enabled bool
	logger  *zap.Logger

	// In-memory ring of recent entries
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewLogger creates a new audit logger
func NewLogger(logger *zap.Logger, enabled bool) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{
		enabled:    enabled,
		logger:     logger.Named("audit"),
		entries:    make([]Entry, 0, defaultMaxEntries),
		maxEntries: defaultMaxEntries,
	}
}

// Log records an audit entry
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if !l.enabled {
		return
	}

	info := tracing.FromContext(ctx)
	if entry.SessionID == "" {
		entry.SessionID = info.SessionID
	}
	if entry.TraceID == "" {
		entry.TraceID = info.TraceID
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.ErrorMsg = security.MaskSensitiveData(entry.ErrorMsg)

	fields := []zap.Field{
		zap.String("tool", entry.Tool),
		zap.String("operation", entry.Operation),
		zap.Bool("success", entry.Success),
		zap.Duration("duration", entry.Duration),
	}
	if entry.SessionID != "" {
		fields = append(fields, zap.String("session_id", entry.SessionID))
	}
	if entry.TraceID != "" {
		fields = append(fields, zap.String("trace_id", entry.TraceID))
	}
	if entry.Project != "" {
		fields = append(fields, zap.String("project", entry.Project))
	}
	if entry.ResourceID != "" {
		fields = append(fields, zap.String("resource_id", entry.ResourceID))
	}
	if entry.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", entry.ErrorCode))
	}
	if entry.ErrorMsg != "" {
		fields = append(fields, zap.String("error_message", entry.ErrorMsg))
	}
	if entry.ResultCount > 0 {
		fields = append(fields, zap.Int("result_count", entry.ResultCount))
	}
	if entry.ResponseMode != "" {
		fields = append(fields,
			zap.String("response_mode", entry.ResponseMode),
			zap.Int("estimated_bytes", entry.EstimatedBytes))
	}

	l.logger.Info("audit", fields...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
}

// GetRecentEntries returns up to limit entries, newest first
func (l *Logger) GetRecentEntries(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}

	result := make([]Entry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, l.entries[i])
	}
	return result
}

// GetEntriesBySession returns all entries for a session, oldest first
func (l *Logger) GetEntriesBySession(sessionID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Entry
	for _, entry := range l.entries {
		if entry.SessionID == sessionID {
			result = append(result, entry)
		}
	}
	return result
}

// GetStats returns statistics about audit entries
func (l *Logger) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalEntries:  len(l.entries),
		ToolUsage:     make(map[string]int),
		ErrorCounts:   make(map[string]int),
		ResponseModes: make(map[string]int),
	}

	var successCount int
	var totalDuration time.Duration
	for _, entry := range l.entries {
		stats.ToolUsage[entry.Tool]++
		if entry.ResponseMode != "" {
			stats.ResponseModes[entry.ResponseMode]++
		}
		if entry.Success {
			successCount++
		} else if entry.ErrorCode != "" {
			stats.ErrorCounts[entry.ErrorCode]++
		}
		totalDuration += entry.Duration
	}

	if len(l.entries) > 0 {
		stats.SuccessRate = float64(successCount) / float64(len(l.entries)) * 100
		stats.AverageDuration = totalDuration / time.Duration(len(l.entries))
	}
	return stats
}

// Stats contains aggregated audit statistics
type Stats struct {
	TotalEntries    int            `json:"total_entries"`
	SuccessRate     float64        `json:"success_rate_pct"`
	AverageDuration time.Duration  `json:"average_duration_ns"`
	ToolUsage       map[string]int `json:"tool_usage"`
	ErrorCounts     map[string]int `json:"error_counts"`
	ResponseModes   map[string]int `json:"response_modes"`
}

// ToJSON returns the stats as JSON
func (s Stats) ToJSON() string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// IsEnabled returns whether audit logging is enabled
func (l *Logger) IsEnabled() bool {
	return l.enabled
}
