package models

import (
	"strings"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleFleetManager     Role = "fleet_manager"
	RoleRMManager        Role = "rm_manager"
	RoleTechnician       Role = "technician"
	RoleInventoryManager Role = "inventory_manager"
	RoleDriver           Role = "driver"
)

// Feature is a navigation target a role may open.
type Feature string

const (
	FeatureFleetManager Feature = "fleet-manager"
	FeatureRMManager    Feature = "rm-manager"
	FeatureTechnician   Feature = "technician"
	FeatureInventory    Feature = "inventory"
	FeatureForm         Feature = "form"
)

// Features is the full feature universe in display order.
var Features = []Feature{
	FeatureFleetManager,
	FeatureRMManager,
	FeatureTechnician,
	FeatureInventory,
	FeatureForm,
}

var roleAccess = map[Role][]Feature{
	RoleAdmin:            {FeatureFleetManager, FeatureRMManager, FeatureTechnician, FeatureInventory, FeatureForm},
	RoleFleetManager:     {FeatureFleetManager, FeatureForm},
	RoleRMManager:        {FeatureRMManager},
	RoleTechnician:       {FeatureTechnician},
	RoleInventoryManager: {FeatureInventory},
	RoleDriver:           {FeatureForm},
}

// Actions checked by HasPermission.
const (
	ActionSubmitReport = "submit_report"
	ActionReviewReport = "review_report"
	ActionAcceptJob    = "accept_job"
	ActionUpdateJob    = "update_job"
	ActionCompleteJob  = "complete_job"
	ActionAdjustStock  = "adjust_stock"
	ActionViewReports  = "view_reports"
)

// User is the backend's view of the signed-in identity (GET /me).
type User struct {
	ID    int64  `json:"user_id"`
	Role  Role   `json:"user_role"`
	Name  string `json:"user_name"`
	Email string `json:"user_email"`
}

// Claims are the identity-token claims the client reads.
type Claims struct {
	Subject  string   `json:"sub"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Groups   []string `json:"groups"`
	Exp      int64    `json:"exp"`
}

// ParseRole normalises a role string, returning it unchanged when unknown.
func ParseRole(v string) Role {
	return Role(strings.ToLower(strings.TrimSpace(v)))
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	_, ok := roleAccess[role]
	return ok
}

// AllowedFeatures returns the ordered features a role may access.
// Unknown or missing roles get the driver set.
func AllowedFeatures(role Role) []Feature {
	features, ok := roleAccess[role]
	if !ok {
		features = roleAccess[RoleDriver]
	}
	return append([]Feature(nil), features...)
}

// CanAccess reports whether a role may open a feature.
func CanAccess(role Role, feature Feature) bool {
	for _, f := range AllowedFeatures(role) {
		if f == feature {
			return true
		}
	}
	return false
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleFleetManager:
		return action == ActionSubmitReport || action == ActionViewReports
	case RoleRMManager:
		return action == ActionReviewReport || action == ActionViewReports
	case RoleTechnician:
		return action == ActionAcceptJob || action == ActionUpdateJob ||
			action == ActionCompleteJob || action == ActionViewReports
	case RoleInventoryManager:
		return action == ActionAdjustStock
	default:
		return action == ActionSubmitReport
	}
}

// DisplayName is the identity string recorded on audits and assignments.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
