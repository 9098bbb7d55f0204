package models

import "github.com/golang-jwt/jwt/v5"

const (
	RoleAdmin    = "admin"
	RoleInvestor = "investor"
	RoleStartup  = "startup"
)

type UserClaims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HasPermission checks if the claims include a specific permission
func (c *UserClaims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func (c *UserClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
