// Package main mints bearer tokens for callers of the gate API.
// Tokens are signed with JWT_SECRET, so they only work against a server
// sharing that secret.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/joho/godotenv"
)

const defaultTokenTTL = 24 * time.Hour

type tokenOutput struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	Subject   string `json:"subject"`
	ExpiresIn string `json:"expires_in"`
}

func main() {
	serviceCmd := flag.NewFlagSet("service", flag.ExitOnError)
	serviceSubject := serviceCmd.String("subject", "login-frontend", "Calling service name")
	serviceTTL := serviceCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	serviceJSON := serviceCmd.Bool("json", false, "Output as JSON")

	adminCmd := flag.NewFlagSet("admin", flag.ExitOnError)
	adminSubject := adminCmd.String("subject", "operator", "Operator name")
	adminTTL := adminCmd.Duration("ttl", time.Hour, "Token time-to-live")
	adminJSON := adminCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}
	tm := auth.NewTokenManager(secret, os.Getenv("JWT_ISSUER"))

	switch os.Args[1] {
	case "service":
		_ = serviceCmd.Parse(os.Args[2:])
		mint(tm, *serviceSubject, models.RoleService, *serviceTTL, *serviceJSON)
	case "admin":
		_ = adminCmd.Parse(os.Args[2:])
		mint(tm, *adminSubject, models.RoleAdmin, *adminTTL, *adminJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - mint bearer tokens for the authgate API

Usage:
  tokengen <command> [flags]

Commands:
  service   Token for an authenticator calling /v1/gate and /v1/attempts
  admin     Token for operator endpoints under /v1/admin

Examples:
  tokengen service -subject sso-bridge
  tokengen admin -ttl 15m -json`)
}

func mint(tm *auth.TokenManager, subject, role string, ttl time.Duration, jsonOutput bool) {
	token, err := tm.GenerateToken(subject, role, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tokenOutput{Token: token, Role: role, Subject: subject, ExpiresIn: ttl.String()}); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Role:       %s\n", role)
	fmt.Printf("Subject:    %s\n", subject)
	fmt.Printf("Expires In: %s\n", ttl)
	fmt.Println()
	fmt.Println(token)
}
