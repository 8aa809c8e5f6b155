// Package notify delivers fire-and-forget change notices through the
// background job queue.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stafflane/stafflane/internal/permissions"
	"github.com/stafflane/stafflane/jobs"
)

// Notifier enqueues notification tasks. Delivery is at-most-once from the
// orchestrator's perspective; the queue worker owns retries.
type Notifier struct {
	client *jobs.Client
	logger *slog.Logger
}

// NewNotifier constructs a Notifier instance.
func NewNotifier(client *jobs.Client, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, logger: logger}
}

// Notify implements the orchestrator's notification collaborator.
func (n *Notifier) Notify(ctx context.Context, kind string, payload any) error {
	if n.client == nil {
		return nil
	}
	switch kind {
	case permissions.EventPermissionsChanged:
		notice, ok := payload.(permissions.ChangeNotice)
		if !ok {
			return fmt.Errorf("notify: unexpected payload %T for %s", payload, kind)
		}
		_, err := n.client.EnqueuePermissionChange(ctx, jobs.PermissionChangePayload{
			EntityKind:     notice.EntityKind,
			EntityID:       notice.EntityID,
			EntityName:     notice.EntityName,
			Added:          notice.Added,
			Removed:        notice.Removed,
			RequestorEmail: notice.Requestor,
		})
		return err
	default:
		n.logger.Warn("unknown notification kind", slog.String("kind", kind))
		return nil
	}
}

var _ permissions.Notifier = (*Notifier)(nil)
