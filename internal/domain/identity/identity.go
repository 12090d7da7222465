// Package identity defines the authenticated caller model the engine
// receives from the transport layer. Authentication itself happens
// upstream; the engine only consumes the resolved identity.
package identity

// Role represents the authorization level of a caller within a workspace.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ValidRoles is the set of all valid caller roles.
var ValidRoles = map[Role]bool{
	RoleAdmin:  true,
	RoleEditor: true,
	RoleViewer: true,
}

// Caller is the already-authenticated principal performing an operation.
type Caller struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	WorkspaceID string `json:"workspace_id"`
}

// IsAdmin reports whether the caller holds the admin role.
func (c *Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// InWorkspace reports whether the caller belongs to the given workspace.
func (c *Caller) InWorkspace(workspaceID string) bool {
	return c.WorkspaceID == workspaceID
}
