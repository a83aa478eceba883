package check

import (
	"fmt"
	"time"
)

// DurationOption reads a duration from a factory config map. The value may
// be a time.Duration or a string parseable by time.ParseDuration. ok is
// false when the key is absent.
func DurationOption(config map[string]any, key string) (d time.Duration, ok bool, err error) {
	v, ok := config[key]
	if !ok {
		return 0, false, nil
	}
	switch t := v.(type) {
	case time.Duration:
		return t, true, nil
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s %q: %w", key, t, err)
		}
		return d, true, nil
	default:
		return 0, false, fmt.Errorf("'%s' must be a duration, got %T", key, v)
	}
}
