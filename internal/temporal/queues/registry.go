// Package queues defines per-queue worker configuration for task-queue partitioning.
package queues

import (
	"fmt"
	"strings"

	"go.temporal.io/sdk/worker"

	"github.com/finops-claw-gang/genui/internal/temporal/versioning"
)

// QueueConfig holds worker options for a single task queue.
type QueueConfig struct {
	Name    string
	Options worker.Options
}

// DefaultConfigs returns the standard per-queue worker options.
//
//   - QueueImage: short jobs, high concurrency
//   - QueueVideo: long polls against slow providers, tight concurrency
//   - QueueAudio: in between
func DefaultConfigs() map[string]QueueConfig {
	return map[string]QueueConfig{
		versioning.QueueImage: {
			Name: versioning.QueueImage,
			Options: worker.Options{
				MaxConcurrentActivityExecutionSize:     20,
				MaxConcurrentWorkflowTaskExecutionSize: 10,
			},
		},
		versioning.QueueVideo: {
			Name: versioning.QueueVideo,
			Options: worker.Options{
				MaxConcurrentActivityExecutionSize:     4,
				MaxConcurrentWorkflowTaskExecutionSize: 4,
			},
		},
		versioning.QueueAudio: {
			Name: versioning.QueueAudio,
			Options: worker.Options{
				MaxConcurrentActivityExecutionSize:     10,
				MaxConcurrentWorkflowTaskExecutionSize: 5,
			},
		},
	}
}

// All lists every queue in a stable order.
func All() []string {
	return []string{versioning.QueueImage, versioning.QueueVideo, versioning.QueueAudio}
}

// ParseQueues parses a comma-separated queue list (e.g. "image,video")
// into a set of queue names. Accepts both short names ("image") and
// full names ("genui-image"). An empty list means every queue.
func ParseQueues(raw string) ([]string, error) {
	shortNames := map[string]string{
		"image": versioning.QueueImage,
		"video": versioning.QueueVideo,
		"audio": versioning.QueueAudio,
	}
	fullNames := map[string]bool{
		versioning.QueueImage: true,
		versioning.QueueVideo: true,
		versioning.QueueAudio: true,
	}

	seen := make(map[string]bool)
	var result []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if full, ok := shortNames[name]; ok {
			name = full
		}
		if !fullNames[name] {
			return nil, fmt.Errorf("unknown queue %q", name)
		}
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}
	if len(result) == 0 {
		return All(), nil
	}
	return result, nil
}
