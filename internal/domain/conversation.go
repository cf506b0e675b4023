package domain

import "time"

// TimestampLayout renders turn sort keys as ISO-8601 UTC with fixed microsecond
// precision so lexical order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000+00:00"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles the store and backends accept.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single persisted message within a session.
// SessionID is the partition key and Timestamp the sort key.
type Turn struct {
	SessionID string `dynamodbav:"session_id"`
	Timestamp string `dynamodbav:"ts"`
	Role      Role   `dynamodbav:"role"`
	Content   string `dynamodbav:"content"`
	LatencyMS *int64 `dynamodbav:"latency_ms,omitempty"`
}

// FormatTimestamp returns the sort key value for t.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
