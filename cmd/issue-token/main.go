// Command issue-token mints a bearer token for an operator or integration.
//
//	issue-token -sub jane -email jane.doe@example.com -role editor
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/spec-kit/locate-tracker/internal/auth"
	"github.com/spec-kit/locate-tracker/internal/domain"
)

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "", "subject id (required)")
	email := flag.String("email", "", "email claim")
	role := flag.String("role", string(domain.RoleViewer), "viewer, editor or admin")
	ttl := flag.Int("ttl", 7*24*60, "lifetime in minutes")
	flag.Parse()

	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if *subject == "" {
		log.Fatal("-sub is required")
	}
	r := domain.Role(*role)
	if !r.AtLeast(domain.RoleViewer) {
		log.Fatalf("unknown role %q", *role)
	}

	token, expiresAt, err := auth.NewTokenManager(secret, *ttl).GenerateToken(*subject, *email, r)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format("2006-01-02 15:04 MST"))
}
