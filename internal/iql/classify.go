package iql

// QueryInfo is the static classification of a query string. It is produced
// without touching live data, so callers can validate untrusted query text
// before execution.
type QueryInfo struct {
	Kind      string `json:"kind"` // find, summarize, or invalid
	Target    string `json:"target,omitempty"`
	HasFilter bool   `json:"has_filter"`
	HasLimit  bool   `json:"has_limit"`
	Error     string `json:"error,omitempty"`
}

// Classify inspects a query string without executing it.
func Classify(input string) QueryInfo {
	q, err := Parse(input)
	if err != nil {
		return QueryInfo{Kind: "invalid", Error: err.Error()}
	}
	info := QueryInfo{
		Kind:      string(q.Kind),
		Target:    string(q.Target),
		HasFilter: len(q.Where) > 0,
		HasLimit:  q.Limit >= 0,
	}
	return info
}
