package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePermissionChange notifies collaborators about a committed
	// permission mutation.
	TaskTypePermissionChange = "permissions:changed"
)

// PermissionChangePayload describes a committed permission mutation.
type PermissionChangePayload struct {
	EntityKind     string   `json:"entityKind"`
	EntityID       string   `json:"entityId"`
	EntityName     string   `json:"entityName"`
	Added          []string `json:"added"`
	Removed        []string `json:"removed"`
	RequestorEmail string   `json:"requestorEmail"`
}

// NewPermissionChangeTask constructs an Asynq task.
func NewPermissionChangeTask(payload PermissionChangePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePermissionChange, data), nil
}

// HandlePermissionChange returns the handler for TaskTypePermissionChange
// tasks. Delivery is log-only until an outbound channel is wired.
func HandlePermissionChange(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PermissionChangePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("permission change notice",
			slog.String("entity_kind", payload.EntityKind),
			slog.String("entity_id", payload.EntityID),
			slog.String("entity_name", payload.EntityName),
			slog.String("requestor", payload.RequestorEmail),
			slog.Any("added", payload.Added),
			slog.Any("removed", payload.Removed),
		)
		return nil
	}
}
