package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBucketTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC).Unix()

	tests := []struct {
		granularity string
		expected    int64
	}{
		{"minute", time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC).Unix()},
		{"hour", time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC).Unix()},
		{"invalid", ts},
	}

	for _, tt := range tests {
		t.Run(tt.granularity, func(t *testing.T) {
			require.Equal(t, tt.expected, BucketTimestamp(ts, tt.granularity))
		})
	}
}
