package cache

import (
	"strconv"
	"strings"
)

// ServerMetrics are the store-reported figures included in a stats snapshot.
type ServerMetrics struct {
	Available              bool   `json:"available"`
	UsedMemory             string `json:"used_memory"`
	UsedMemoryPeak         string `json:"used_memory_peak"`
	UsedMemoryBytes        int64  `json:"used_memory_bytes"`
	KeyspaceHits           int64  `json:"keyspace_hits"`
	KeyspaceMisses         int64  `json:"keyspace_misses"`
	TotalCommandsProcessed int64  `json:"total_commands_processed"`
	ConnectedClients       int64  `json:"connected_clients"`
}

// infoSections are queried in this order and concatenated before parsing.
var infoSections = []string{"stats", "memory", "clients"}

// ParseServerMetrics extracts the fields we report from INFO text.
// Integer fields are summed over repeated lines (one per cluster master);
// string fields keep their first value.
func ParseServerMetrics(info string) ServerMetrics {
	fields := parseInfoFields(info)

	first := func(name string) string {
		if v := fields[name]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	sum := func(name string) int64 {
		var total int64
		for _, v := range fields[name] {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				total += n
			}
		}
		return total
	}

	return ServerMetrics{
		Available:              len(fields) > 0,
		UsedMemory:             first("used_memory_human"),
		UsedMemoryPeak:         first("used_memory_peak_human"),
		UsedMemoryBytes:        sum("used_memory"),
		KeyspaceHits:           sum("keyspace_hits"),
		KeyspaceMisses:         sum("keyspace_misses"),
		TotalCommandsProcessed: sum("total_commands_processed"),
		ConnectedClients:       sum("connected_clients"),
	}
}

// parseInfoFields collects every "name:value" line, skipping comments.
func parseInfoFields(info string) map[string][]string {
	fields := make(map[string][]string)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[name] = append(fields[name], strings.TrimSpace(value))
	}
	return fields
}
