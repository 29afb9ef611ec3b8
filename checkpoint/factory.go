package checkpoint

import (
	"fmt"
)

// NewStore builds the configured checkpoint backend.
func NewStore(backend string, config map[string]interface{}) (Store, error) {
	switch backend {
	case "redis":
		return NewRedisStore(config)
	case "bolt", "":
		return NewBoltStore(config)
	default:
		return nil, fmt.Errorf("unsupported checkpoint backend: %s", backend)
	}
}
