package reconcile

import "github.com/google/uuid"

// identityNamespace scopes device identity tokens to solbridge.
var identityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/dokzlo13/solbridge/device"))

// IdentityToken derives the accessory identity for a SOL device id.
// It is a name-based UUID, so the same id maps to the same token across
// polls and restarts.
func IdentityToken(id string) string {
	return uuid.NewSHA1(identityNamespace, []byte(id)).String()
}
