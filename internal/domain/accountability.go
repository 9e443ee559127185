package domain

// Accountability is the permission context under which a read is authorized.
// It is resolved when a connection is established and refreshed on every
// dispatch, so a push always reflects current access rules.
type Accountability struct {
	User  string `json:"user,omitempty"`
	Role  string `json:"role"`
	Admin bool   `json:"admin"`
}

// PublicRole is the role assumed by connections without a token.
const PublicRole = "public"

// Public returns the accountability of an anonymous connection.
func Public() Accountability {
	return Accountability{Role: PublicRole}
}

// Anonymous reports whether the accountability carries no resolved user.
func (a Accountability) Anonymous() bool {
	return a.User == ""
}
