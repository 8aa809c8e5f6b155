package audit

import (
	"context"
	"errors"
	"time"
)

// Recorder appends change-log entries after committed permission
// mutations. The caller supplies the prior snapshot it read under the
// per-entity lock, so the diff is computed against the live committed
// state rather than the last written log entry: a failed or delayed audit
// write cannot shift the baseline of the next diff.
type Recorder struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewRecorder builds a Recorder instance.
func NewRecorder(repo RepositoryPort) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// Record diffs next against prior and appends one immutable entry.
func (r *Recorder) Record(ctx context.Context, kind EntityKind, entityID, entityName string, prior, next []string, requestor Requestor) (*ChangeLog, error) {
	if entityID == "" {
		return nil, errors.New("audit: entity id required")
	}
	added, removed := Diff(prior, next)
	entry := ChangeLog{
		LoggedAt:           r.now().UTC(),
		EntityID:           entityID,
		EntityName:         entityName,
		Permissions:        append([]string(nil), next...),
		PermissionsAdded:   added,
		PermissionsRemoved: removed,
		Requestor:          requestor,
	}
	return r.repo.Insert(ctx, kind, entry)
}
