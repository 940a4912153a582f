package models

import "github.com/golang-jwt/jwt/v5"

// Roles
const (
	RoleClient   = "client"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// UserClaims are the JWT claims attached to authenticated API requests.
// Token issuance lives in the account service; this service only
// validates and reads.
type UserClaims struct {
	jwt.RegisteredClaims
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
}
