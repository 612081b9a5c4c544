package models

// APIKey authenticates the operator CLI against the ops surface.
// Only the bcrypt hash is stored; the raw key is shown once at creation.
type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	KeyHash   string `json:"-"`
	KeyPrefix string `json:"key_prefix"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
	RevokedAt *int64 `json:"revoked_at,omitempty"`
}
