// Package auth provides staff authentication for the ledger API: bcrypt
// password hashing, HS256 JWTs, and the gin middleware enforcing them.
package auth

// UserClaims are the application claims carried in an access token.
type UserClaims struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"is_admin"`
}

// AuthError is a coded authentication error safe to return to clients.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

var (
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "authentication required"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or malformed token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}
	ErrAdminRequired      = AuthError{Code: "ADMIN_REQUIRED", Message: "admin access required"}
)
