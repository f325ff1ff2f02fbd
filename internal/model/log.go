// Package model holds the records that flow through logbuf: stored log
// entries, per-app status rows, and the wire payload shipped to a collector.
package model

// AnonymousAppKey is the tenant used when no app key is configured.
const AnonymousAppKey = "$anonymous"

// Content is the user-visible part of a log entry.
type Content struct {
	Text      string `json:"text" cbor:"1,keyasint"`
	Level     Level  `json:"level" cbor:"2,keyasint"`
	Timestamp int64  `json:"timestamp" cbor:"3,keyasint"` // Unix milliseconds
	OriginURL string `json:"url,omitempty" cbor:"4,keyasint,omitempty"`
	UserID    string `json:"userId,omitempty" cbor:"5,keyasint,omitempty"`
}

// Size returns the byte count charged against the quota for this content.
func (c Content) Size() int64 {
	return int64(len(c.Text))
}

// LogEntry is a persisted log record. CreateTime is both the ordering key
// and the unique id; entries are never mutated after append.
type LogEntry struct {
	CreateTime int64   `json:"createTime"`
	AppKey     string  `json:"appKey"`
	Content    Content `json:"content"`
}

// AppStatus tracks the running byte total for one app key.
type AppStatus struct {
	AppKey    string `json:"appKey"`
	TotalSize int64  `json:"totalSize"`
}
