// Command devtoken mints a signed access token for local development and smoke
// tests. Production tokens come from the identity provider.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"ventureflow/internal/config"
	"ventureflow/internal/models"
	"ventureflow/internal/utils"
)

func main() {
	userID := flag.String("user", "", "user id (required)")
	role := flag.String("role", models.RoleInvestor, "role: investor, startup or admin")
	email := flag.String("email", "", "email claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	config.LoadEnv()
	if config.IsProduction() {
		log.Fatal("devtoken must not be used in production")
	}
	if *userID == "" {
		log.Fatal("-user is required")
	}
	switch *role {
	case models.RoleInvestor, models.RoleStartup, models.RoleAdmin:
	default:
		log.Fatalf("unknown role %q", *role)
	}

	cfg := config.Load()
	token, err := utils.GenerateToken(cfg.Auth.JWTSecret, models.UserClaims{
		UserID: *userID,
		Email:  *email,
		Role:   *role,
	}, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
