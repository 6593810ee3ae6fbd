package custody

import "strings"

// Identity is an authenticated caller or recipient principal. The hosting
// environment is responsible for authentication; the state machine only
// compares identities for equality.
type Identity string

// IdentityZero is the null identity. It is never a valid owner or heir.
const IdentityZero Identity = ""

// IsZero reports whether the identity is null. Whitespace-only identities
// count as null so a padded header value cannot smuggle an empty principal.
func (id Identity) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// String returns the identity as a plain string.
func (id Identity) String() string {
	return string(id)
}
