package processor

// LogRecord is a raw audit-log event as returned by the management API.
// Records are immutable once fetched; the ID of the last record in a page
// becomes the cursor for the next page.
type LogRecord struct {
	ID      string     `json:"id"`
	Date    string     `json:"date"`
	Type    string     `json:"type"`
	Details LogDetails `json:"details"`
}

type LogDetails struct {
	Request  map[string]interface{} `json:"request,omitempty"`
	Response map[string]interface{} `json:"response,omitempty"`
}

// RequestPath returns details.request.path, or "" when absent.
func (r *LogRecord) RequestPath() string {
	if r.Details.Request == nil {
		return ""
	}
	path, _ := r.Details.Request["path"].(string)
	return path
}

// DeliveryPayload is the projection of a filtered LogRecord that gets
// POSTed to the webhook, one payload per record.
type DeliveryPayload struct {
	Date     string                 `json:"date"`
	Request  map[string]interface{} `json:"request"`
	Response map[string]interface{} `json:"response"`
}
