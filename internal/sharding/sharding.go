package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of subject partitions per topic.
const ShardCount = 1024

// GetShardID calculates the deterministic shard ID for an owning user.
func GetShardID(userID string) int {
	checksum := crc32.ChecksumIEEE([]byte(userID))
	return int(checksum % ShardCount)
}

// Subject returns the NATS subject for a topic and owning user.
// Format: todo.{topic}.{shard_id}.user.{user_id}
func Subject(topic, userID string) string {
	return fmt.Sprintf("todo.%s.%d.user.%s", topic, GetShardID(userID), userID)
}

// TopicFilter returns the wildcard subject a consumer of a topic subscribes to.
func TopicFilter(topic string) string {
	return "todo." + topic + ".>"
}
