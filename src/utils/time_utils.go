package utils

import (
	"fmt"
	"time"
)

// BucketTimestamp truncates a Unix timestamp to the start of its bucket so
// repeated ingestion runs within the same bucket upsert the same row.
// Pass "minute" to bucket by minute.
// Pass "hour" to bucket by hour.
func BucketTimestamp(ts int64, granularity string) int64 {
	t := time.Unix(ts, 0).UTC()
	switch granularity {
	case "minute":
		return t.Truncate(time.Minute).Unix()
	case "hour":
		return t.Truncate(time.Hour).Unix()
	default:
		fmt.Println("Invalid granularity. Please use 'minute' or 'hour'.")
		return ts
	}
}
