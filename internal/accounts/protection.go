package accounts

import (
	"context"

	"github.com/stafflane/stafflane/internal/shared"
)

// ProtectionPolicy decides whether a requestor may act on a target account
// at all. The authorization guard treats it as a boolean oracle; denials
// are final regardless of permission grants.
type ProtectionPolicy interface {
	CanRequestorActOnTarget(ctx context.Context, requestorID, targetID int64) (bool, error)
}

// SelfProtectionPolicy is the default policy: an owner may not rewrite
// their own permission set, which guards against accidental self-demotion
// of the last privileged account.
type SelfProtectionPolicy struct {
	repo RepositoryPort
}

// NewSelfProtectionPolicy constructs the default policy.
func NewSelfProtectionPolicy(repo RepositoryPort) *SelfProtectionPolicy {
	return &SelfProtectionPolicy{repo: repo}
}

// CanRequestorActOnTarget implements ProtectionPolicy.
func (p *SelfProtectionPolicy) CanRequestorActOnTarget(ctx context.Context, requestorID, targetID int64) (bool, error) {
	if requestorID != targetID {
		return true, nil
	}
	requestor, err := p.repo.GetUser(ctx, requestorID)
	if err != nil {
		return false, err
	}
	return requestor.Role != shared.RoleOwner, nil
}

var _ ProtectionPolicy = (*SelfProtectionPolicy)(nil)
