package model

// BizInfo is one record in an outbound report.
type BizInfo struct {
	AppKey  string `json:"appKey"`
	Content string `json:"content"`
	Type    int    `json:"type"`
	Created int64  `json:"created"`
	URL     string `json:"url"`
	UserID  string `json:"userId"`
}

// NewBizInfo converts a stored entry into its wire form.
func NewBizInfo(entry LogEntry) BizInfo {
	return BizInfo{
		AppKey:  entry.AppKey,
		Content: entry.Content.Text,
		Type:    int(entry.Content.Level),
		Created: entry.Content.Timestamp,
		URL:     entry.Content.OriginURL,
		UserID:  entry.Content.UserID,
	}
}

// FormatReport converts query results into report records, preserving order.
func FormatReport(entries []LogEntry) []BizInfo {
	records := make([]BizInfo, 0, len(entries))
	for _, entry := range entries {
		records = append(records, NewBizInfo(entry))
	}
	return records
}

// Network describes the host's connectivity at collection time.
type Network struct {
	Online     bool     `json:"online"`
	Interfaces []string `json:"interfaces,omitempty"`
}

// EnvInfo describes the device that produced a report.
type EnvInfo struct {
	Network      Network `json:"network"`
	Platform     string  `json:"platform"`
	DeviceMemory float64 `json:"deviceMemory"`
	UserAgent    string  `json:"userAgent"`
	InstanceID   string  `json:"instanceId,omitempty"`
}

// Payload is the body POSTed to a collector.
type Payload struct {
	BizInfo []BizInfo `json:"bizInfo"`
	EnvInfo EnvInfo   `json:"envInfo"`
}
