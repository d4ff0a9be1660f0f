package analytics

import (
	"log"
	"time"
)

// ToInstant normalizes the timestamp shapes that appear in stored records:
// a native time.Time, an ISO/RFC3339 string, an epoch number (seconds or
// milliseconds), or a {seconds,nanos} document-timestamp map. Any other
// shape falls back to now and is logged as a data-quality warning — never
// silently trusted.
func ToInstant(value interface{}) time.Time {
	switch v := value.(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	case int64:
		return epochToInstant(v)
	case int:
		return epochToInstant(int64(v))
	case float64:
		return epochToInstant(int64(v))
	case map[string]interface{}:
		if secs, ok := asInt64(v["seconds"]); ok {
			nanos, _ := asInt64(v["nanos"])
			return time.Unix(secs, nanos).UTC()
		}
	}

	log.Printf("unrecognized timestamp shape %T (%v), falling back to now", value, value)
	return time.Now().UTC()
}

// epochToInstant treats magnitudes beyond 1e12 as milliseconds.
func epochToInstant(n int64) time.Time {
	if n > 1e12 || n < -1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
