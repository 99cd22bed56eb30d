package subscriber

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestRedeliveryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers []kafka.Header
		want    int
	}{
		{name: "no headers", headers: nil, want: 0},
		{
			name:    "counted",
			headers: []kafka.Header{{Key: "x-redelivery-count", Value: []byte("3")}},
			want:    3,
		},
		{
			name:    "garbage value",
			headers: []kafka.Header{{Key: "x-redelivery-count", Value: []byte("many")}},
			want:    0,
		},
		{
			name:    "unrelated header",
			headers: []kafka.Header{{Key: "traceparent", Value: []byte("00-abc")}},
			want:    0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := redeliveryCount(tc.headers); got != tc.want {
				t.Fatalf("redeliveryCount=%d, expected %d", got, tc.want)
			}
		})
	}
}
