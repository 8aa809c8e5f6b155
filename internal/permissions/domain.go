package permissions

import (
	"sort"
	"strings"

	"github.com/stafflane/stafflane/internal/accounts"
)

// OverridePatch is a partial update of an actor's permission override.
// Nil fields keep their prior values; present fields replace them whole.
type OverridePatch struct {
	IsAcknowledged            *bool     `json:"isAcknowledged"`
	FrontPermissions          *[]string `json:"frontPermissions" validate:"omitempty,dive,required"`
	BackPermissions           *[]string `json:"backPermissions" validate:"omitempty,dive,required"`
	RemovedDefaultPermissions *[]string `json:"removedDefaultPermissions" validate:"omitempty,dive,required"`
}

// Apply merges the patch over an existing override, field by field.
func (p OverridePatch) Apply(existing accounts.Override) accounts.Override {
	merged := existing
	if p.IsAcknowledged != nil {
		merged.IsAcknowledged = *p.IsAcknowledged
	}
	if p.FrontPermissions != nil {
		merged.FrontPermissions = normalizeKeys(*p.FrontPermissions)
	}
	if p.BackPermissions != nil {
		merged.BackPermissions = normalizeKeys(*p.BackPermissions)
	}
	if p.RemovedDefaultPermissions != nil {
		merged.RemovedDefaultPermissions = normalizeKeys(*p.RemovedDefaultPermissions)
	}
	return merged
}

// Effective computes the effective permission set:
// (roleDefaults ∪ front ∪ back) \ removed. The result is sorted so that
// snapshots and audit diffs are deterministic.
func Effective(roleDefaults []string, ov accounts.Override) []string {
	set := make(map[string]struct{}, len(roleDefaults)+len(ov.FrontPermissions)+len(ov.BackPermissions))
	for _, key := range roleDefaults {
		set[key] = struct{}{}
	}
	for _, key := range ov.FrontPermissions {
		set[key] = struct{}{}
	}
	for _, key := range ov.BackPermissions {
		set[key] = struct{}{}
	}
	for _, key := range ov.RemovedDefaultPermissions {
		delete(set, key)
	}

	result := make([]string, 0, len(set))
	for key := range set {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	result := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	return result
}
