// Package access decides what a user may do with a document.
package access

import "certifai/api/internal/store"

type Role string
type Action string

const (
	RoleNone   Role = "none"
	RoleReader Role = "reader"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

const (
	ActionRead Action = "read"
	ActionEdit Action = "edit"
	ActionSign Action = "sign"
	// ActionManage covers visibility, editor membership, and archiving.
	ActionManage Action = "manage"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionEdit || action == ActionSign
	case RoleReader:
		return action == ActionRead
	default:
		return false
	}
}

// RoleFor resolves userID's role on doc. Public and org documents are
// readable by every authenticated user.
func RoleFor(doc store.Document, userID string) Role {
	switch {
	case userID == "":
		return RoleNone
	case doc.CreatedBy == userID:
		return RoleOwner
	case doc.HasEditor(userID):
		return RoleEditor
	case doc.Visibility == store.VisibilityPublic || doc.Visibility == store.VisibilityOrg:
		return RoleReader
	default:
		return RoleNone
	}
}

// Allowed is RoleFor followed by Can.
func Allowed(doc store.Document, userID string, action Action) bool {
	return Can(RoleFor(doc, userID), action)
}

// ValidVisibility reports whether value is one of the stored visibilities.
func ValidVisibility(value string) bool {
	switch value {
	case store.VisibilityPrivate, store.VisibilityOrg, store.VisibilityPublic:
		return true
	default:
		return false
	}
}
