// Package constants holds the small set of string constants shared across
// the transport and service layers — response envelope keys, header names,
// and context keys.
package constants

// HTTP headers and content types
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	ContentTypeJSON     = "application/json"
	BearerPrefix        = "Bearer "
)

// Response envelope keys, per spec.md §6.1:
// {success:true, record|items|total|...} / {success:false, message, details?}
const (
	ResponseSuccess = "success"
	ResponseMessage = "message"
	ResponseDetails = "details"
	ResponseRecord  = "record"
	ResponseItems   = "items"
	ResponseTotal   = "total"
)

// Gin context keys
const (
	ContextKeyUserID = "userId"
	ContextKeyEmail  = "email"
	ContextKeyRole   = "role"
)

// Query parameters for the dynamic CRUD list verb (spec.md §4.7)
const (
	ParamLimit     = "limit"
	ParamSkip      = "skip"
	ParamOwnerOnly = "ownerOnly"

	DefaultListLimit = 20
	MaxListLimit     = 200
)

// System model names (spec.md §4.8.5)
const (
	ModelUser = "User"
	ModelRole = "Role"
)

// Admin role name (spec.md §4.3)
const AdminRoleName = "Admin"

// Default role assigned on registration when none is specified (spec.md §4.2)
const DefaultRoleName = "Viewer"
