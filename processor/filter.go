package processor

import (
	"strings"
)

// DefaultTypes are the event kinds forwarded when no override is configured:
// successful and failed API operations.
var DefaultTypes = []string{"sapi", "fapi"}

const endpointPrefix = "/api/v2/"

// FilterLogs narrows a batch of raw records to the relevant event kinds and
// an optional endpoint allow-list, then projects each survivor to a
// DeliveryPayload. Apply is pure and preserves input order.
type FilterLogs struct {
	types     map[string]struct{}
	endpoints []string
}

func NewFilterLogs(config map[string]interface{}) (*FilterLogs, error) {
	types := DefaultTypes
	if raw, ok := config["types"].([]string); ok && len(raw) > 0 {
		types = raw
	}

	var endpoints []string
	switch v := config["endpoints"].(type) {
	case []string:
		endpoints = v
	case string:
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				endpoints = append(endpoints, e)
			}
		}
	}

	typeSet := make(map[string]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}

	return &FilterLogs{types: typeSet, endpoints: endpoints}, nil
}

// Apply runs the two filter steps and the projection. An empty endpoint
// allow-list means no endpoint filtering.
func (f *FilterLogs) Apply(records []LogRecord) []DeliveryPayload {
	payloads := make([]DeliveryPayload, 0, len(records))
	for _, rec := range records {
		if _, ok := f.types[rec.Type]; !ok {
			continue
		}
		if len(f.endpoints) > 0 && !f.matchesEndpoint(rec.RequestPath()) {
			continue
		}
		payloads = append(payloads, DeliveryPayload{
			Date:     rec.Date,
			Request:  rec.Details.Request,
			Response: rec.Details.Response,
		})
	}
	return payloads
}

// matchesEndpoint reports whether path addresses one of the allowed
// /api/v2 resources, either exactly or as a sub-path.
func (f *FilterLogs) matchesEndpoint(path string) bool {
	for _, entry := range f.endpoints {
		base := endpointPrefix + entry
		if path == base || strings.HasPrefix(path, base+"/") {
			return true
		}
	}
	return false
}
