// Package querier provides access to generation workflows on Temporal.
package querier

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTaskNotFound is returned when no workflow has the task id.
var ErrTaskNotFound = errors.New("querier: task not found")

const workflowIDPrefix = "genui-gen-"

// WorkflowID builds a task id that sorts and filters by session.
func WorkflowID(sessionID, suffix string) string {
	return fmt.Sprintf("%s%s-%s", workflowIDPrefix, sessionID, suffix)
}

// SessionPrefix is the workflow id prefix shared by a session's tasks.
func SessionPrefix(sessionID string) string {
	return workflowIDPrefix + sessionID + "-"
}

// IsTaskID reports whether id looks like a generation task id.
func IsTaskID(id string) bool {
	return strings.HasPrefix(id, workflowIDPrefix)
}
