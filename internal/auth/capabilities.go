// ABOUTME: Capability types plus the static role-to-capability table
// ABOUTME: The mapping is total over all roles and deterministic per request

package auth

import (
	"encoding/json"
	"sort"

	"github.com/taskvine/vine-gateway/internal/store"
)

// Capability is a named permission checked per action within an org context.
type Capability string

const (
	CapTasksRead            Capability = "tasks.read"
	CapTasksCreate          Capability = "tasks.create"
	CapTasksEdit            Capability = "tasks.edit"
	CapTasksDelete          Capability = "tasks.delete"
	CapTasksAssign          Capability = "tasks.assign"
	CapTasksCreateSubtask   Capability = "tasks.create_subtask"
	CapTasksChangeType      Capability = "tasks.change_type"
	CapTasksRelate          Capability = "tasks.relate"
	CapTasksManageChecklist Capability = "tasks.manage_checklist"

	CapMembersView   Capability = "members.view"
	CapMembersInvite Capability = "members.invite"
	CapMembersManage Capability = "members.manage"
	CapMembersRemove Capability = "members.remove"

	CapProjectsCreate  Capability = "projects.create"
	CapProjectsEdit    Capability = "projects.edit"
	CapProjectsDelete  Capability = "projects.delete"
	CapProjectsArchive Capability = "projects.archive"

	CapAnalyticsView   Capability = "analytics.view"
	CapAnalyticsExport Capability = "analytics.export"

	CapOrgSettings  Capability = "org.settings"
	CapOrgDelete    Capability = "org.delete"
	CapAuditLogView Capability = "audit_log.view"
)

// allCapabilities enumerates every defined capability. Owner receives all of
// them.
var allCapabilities = []Capability{
	CapTasksRead, CapTasksCreate, CapTasksEdit, CapTasksDelete, CapTasksAssign,
	CapTasksCreateSubtask, CapTasksChangeType, CapTasksRelate, CapTasksManageChecklist,
	CapMembersView, CapMembersInvite, CapMembersManage, CapMembersRemove,
	CapProjectsCreate, CapProjectsEdit, CapProjectsDelete, CapProjectsArchive,
	CapAnalyticsView, CapAnalyticsExport,
	CapOrgSettings, CapOrgDelete, CapAuditLogView,
}

// CapabilitySet is an immutable set of capabilities resolved for a request.
type CapabilitySet struct {
	caps map[Capability]struct{}
}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	m := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		m[c] = struct{}{}
	}
	return CapabilitySet{caps: m}
}

// Has reports whether the set grants c.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s.caps[c]
	return ok
}

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s.caps))
	for c := range s.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted JSON array of capability names.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// DefaultCapabilities returns the capability set for a role. The mapping is
// static: the same role always yields the same set, and every valid role is
// covered. Unknown roles get an empty set.
func DefaultCapabilities(role store.Role) CapabilitySet {
	switch role {
	case store.RoleGuest:
		return NewCapabilitySet(CapTasksRead, CapMembersView)
	case store.RoleMember:
		return NewCapabilitySet(
			CapTasksRead, CapTasksCreate, CapTasksEdit, CapTasksAssign,
			CapMembersView, CapAnalyticsView,
		)
	case store.RoleManager:
		return NewCapabilitySet(
			CapTasksRead, CapTasksCreate, CapTasksEdit, CapTasksDelete, CapTasksAssign,
			CapTasksCreateSubtask, CapTasksChangeType, CapTasksRelate, CapTasksManageChecklist,
			CapMembersView, CapMembersInvite,
			CapProjectsCreate, CapProjectsEdit,
			CapAnalyticsView, CapAnalyticsExport,
		)
	case store.RoleAdmin:
		return NewCapabilitySet(
			CapTasksRead, CapTasksCreate, CapTasksEdit, CapTasksDelete, CapTasksAssign,
			CapTasksCreateSubtask, CapTasksChangeType, CapTasksRelate, CapTasksManageChecklist,
			CapMembersView, CapMembersInvite, CapMembersManage, CapMembersRemove,
			CapProjectsCreate, CapProjectsEdit, CapProjectsDelete, CapProjectsArchive,
			CapAnalyticsView, CapAnalyticsExport,
			CapOrgSettings, CapAuditLogView,
		)
	case store.RoleOwner:
		return NewCapabilitySet(allCapabilities...)
	default:
		return NewCapabilitySet()
	}
}
