package sharding

import (
	"fmt"
	"strings"
	"testing"
)

func TestGetShardID(t *testing.T) {
	tests := []struct {
		userID string
		want   int
	}{
		{"user-1", 532}, // crc32.ChecksumIEEE values, fixed by ShardCount
		{"user-2", 942},
	}

	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			if got := GetShardID(tt.userID); got != tt.want {
				t.Errorf("GetShardID(%q) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}

func TestSubject(t *testing.T) {
	subject := Subject("task-events", "user-1")
	expected := "todo.task-events.532.user.user-1"
	if subject != expected {
		t.Errorf("Subject = %v, want %v", subject, expected)
	}
	if !strings.HasPrefix(subject, "todo.task-events.") {
		t.Errorf("subject %q does not match topic filter prefix", subject)
	}
}

func TestStableSharding(t *testing.T) {
	id := "test-stable-id"
	if GetShardID(id) != GetShardID(id) {
		t.Error("sharding is not deterministic")
	}
}

func TestDistribution(t *testing.T) {
	// Rough check to ensure we don't map everything to shard 0
	distribution := make(map[int]int)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("user-%d", i)
		distribution[GetShardID(key)]++
	}
	if len(distribution) < 100 {
		t.Errorf("sharding distribution is too poor: %d unique shards for 1000 keys", len(distribution))
	}
}
