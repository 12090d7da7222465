package feedback

import (
	"github.com/agentlens/feedback-engine/internal/domain/identity"
)

// Permission evaluation order, applied by every check below:
// workspace isolation first, then role shortcuts (admin allows all,
// viewer denies writes), then generic ACL membership by caller id or
// role string. These functions are pure; the service is responsible
// for raising PermissionError when a direct-access check fails.

// CanReadDefinition reports whether the caller may read the definition.
func CanReadDefinition(c *identity.Caller, d *Definition) bool {
	if !c.InWorkspace(d.WorkspaceID) {
		return false
	}
	if c.IsAdmin() {
		return true
	}
	return aclContains(d.Permissions.CanRead, c)
}

// CanWriteDefinition reports whether the caller may mutate the definition.
func CanWriteDefinition(c *identity.Caller, d *Definition) bool {
	if !c.InWorkspace(d.WorkspaceID) {
		return false
	}
	if c.IsAdmin() {
		return true
	}
	if c.Role == identity.RoleViewer {
		return false
	}
	return aclContains(d.Permissions.CanWrite, c)
}

// CanDeleteDefinition reports whether the caller may delete the
// definition. The recorded creator may always delete, even without
// explicit ACL membership.
func CanDeleteDefinition(c *identity.Caller, d *Definition) bool {
	if !c.InWorkspace(d.WorkspaceID) {
		return false
	}
	if c.IsAdmin() {
		return true
	}
	if c.Role == identity.RoleViewer {
		return false
	}
	if d.Metadata.CreatorID == c.ID {
		return true
	}
	return aclContains(d.Permissions.CanDelete, c)
}

// CanReadInstance reports whether the caller may read the instance.
// Instances inherit their ACL from the owning definition.
func CanReadInstance(c *identity.Caller, inst *Instance, d *Definition) bool {
	if !c.InWorkspace(inst.WorkspaceID) {
		return false
	}
	if c.IsAdmin() {
		return true
	}
	return aclContains(d.Permissions.CanRead, c)
}

// CanEditInstance reports whether the caller may update the instance's
// value. The recording author may edit their own instance.
func CanEditInstance(c *identity.Caller, inst *Instance, d *Definition) bool {
	if !c.InWorkspace(inst.WorkspaceID) {
		return false
	}
	if c.IsAdmin() {
		return true
	}
	if c.Role == identity.RoleViewer {
		return false
	}
	if inst.Source.Kind == SourceHuman && inst.Source.UserID == c.ID {
		return true
	}
	return aclContains(d.Permissions.CanWrite, c)
}

// CanDeleteInstance reports whether the caller may delete the instance.
func CanDeleteInstance(c *identity.Caller, inst *Instance, d *Definition) bool {
	if !c.InWorkspace(inst.WorkspaceID) {
		return false
	}
	if c.IsAdmin() {
		return true
	}
	if c.Role == identity.RoleViewer {
		return false
	}
	if inst.Source.Kind == SourceHuman && inst.Source.UserID == c.ID {
		return true
	}
	return aclContains(d.Permissions.CanDelete, c)
}

// CanVerify reports whether the caller may verify or unverify instances.
// Verification is restricted to admins regardless of ACL membership.
func CanVerify(c *identity.Caller) bool {
	return c.IsAdmin()
}

// aclContains reports whether the caller's id or role string appears in
// the ACL list.
func aclContains(acl []string, c *identity.Caller) bool {
	for _, entry := range acl {
		if entry == c.ID || entry == string(c.Role) {
			return true
		}
	}
	return false
}
