// Package versioning defines workflow versions and task queue names.
package versioning

const (
	// Workflow versions for determinism tracking.
	GenerationV1 = "generation-v1"

	// Task queues, partitioned by content kind so slow video jobs never
	// starve image workers.
	QueueImage = "genui-image"
	QueueVideo = "genui-video"
	QueueAudio = "genui-audio"
)

// QueueFor returns the task queue serving a content kind. Unknown kinds
// go to the image queue.
func QueueFor(contentKind string) string {
	switch contentKind {
	case "video":
		return QueueVideo
	case "audio":
		return QueueAudio
	default:
		return QueueImage
	}
}
