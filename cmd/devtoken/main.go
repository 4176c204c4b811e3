// Package main mints a bearer token signed with JWT_SECRET, for trying the
// server locally without an identity provider.
//
// Usage:
//
//	JWT_SECRET=dev go run ./cmd/devtoken --sub u1 --name Alice --email alice@example.com
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"roomchat/internal/auth"
	"roomchat/internal/config"
	"roomchat/internal/models"
	"roomchat/pkg/logger"
)

var (
	subject = flag.String("sub", "", "Subject (user id), required")
	name    = flag.String("name", "", "Display name")
	email   = flag.String("email", "", "Email address")
	avatar  = flag.String("avatar", "", "Avatar URL")
	ttl     = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	if *subject == "" {
		flag.Usage()
		os.Exit(2)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	svc := auth.NewService(config.JWTConfig{
		Secret:    []byte(secret),
		Issuer:    os.Getenv("JWT_ISSUER"),
		ExpiresIn: *ttl,
	})

	token, err := svc.IssueToken(models.Identity{
		ID:     *subject,
		Name:   *name,
		Email:  *email,
		Avatar: *avatar,
	})
	if err != nil {
		logger.Fatal("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
