package domain

import "kanmonconnect/internal/permission"

// PermissionRequest is a page request for a device capability such as the camera.
type PermissionRequest struct {
	Origin    string
	Resources []string
}

// PermissionPrompter asks the host (or its user) to decide a permission request.
// The answer is delivered later by resolving tok on the registry that issued it.
type PermissionPrompter interface {
	RequestPermission(tok permission.Token, req PermissionRequest)
}
