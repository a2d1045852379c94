// Package main provides a CLI tool for minting test access tokens for local
// development against the Portico API. Tokens minted here only verify against
// a server started with the same signing key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"portico/internal/identity/models"
	"portico/internal/identity/token"
	id "portico/pkg/domain"
)

const (
	defaultIssuer   = "portico"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string         `json:"token"`
	Type      string         `json:"type"`
	ExpiresIn string         `json:"expiresIn"`
	Claims    map[string]any `json:"claims,omitempty"`
	Usage     string         `json:"usage,omitempty"`
}

func main() {
	accessCmd := flag.NewFlagSet("access", flag.ExitOnError)
	refreshCmd := flag.NewFlagSet("refresh", flag.ExitOnError)
	inspectCmd := flag.NewFlagSet("inspect", flag.ExitOnError)

	accessKey := accessCmd.String("key", "", "JWT signing key (required)")
	accessUserID := accessCmd.String("user-id", "", "User ID (UUID). Generated if empty.")
	accessEmail := accessCmd.String("email", "dev@portal.test", "Subject email")
	accessFirst := accessCmd.String("first-name", "Dev", "Subject first name")
	accessLast := accessCmd.String("last-name", "User", "Subject last name")
	accessRoles := accessCmd.String("roles", "", "Comma-separated tenantID:roleName pairs. Tenant IDs generated when omitted, e.g. \"System-Administrator\" or \"<uuid>:Tenant-Administrator\".")
	accessTTL := accessCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	accessJSON := accessCmd.Bool("json", false, "Output as JSON")

	refreshJSON := refreshCmd.Bool("json", false, "Output as JSON")

	inspectKey := inspectCmd.String("key", "", "JWT signing key (required)")
	inspectExpired := inspectCmd.Bool("allow-expired", false, "Accept a token past its expiry")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "access":
		accessCmd.Parse(os.Args[2:])
		mintAccessToken(*accessKey, *accessUserID, *accessEmail, *accessFirst, *accessLast, *accessRoles, *accessTTL, *accessJSON)
	case "refresh":
		refreshCmd.Parse(os.Args[2:])
		mintRefreshToken(*refreshJSON)
	case "inspect":
		inspectCmd.Parse(os.Args[2:])
		inspectToken(*inspectKey, *inspectExpired, inspectCmd.Arg(0))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Mint test tokens for the Portico API

WARNING: Only use for local development and testing. A minted access token
         verifies only against a server started with the same signing key.

Usage:
  tokengen <command> [flags]

Commands:
  access    Mint a signed access token (JWT)
  refresh   Generate an opaque refresh token value
  inspect   Parse an access token and print its claims

Examples:
  # Mint an access token for a generated user
  tokengen access -key "my-local-signing-key"

  # Mint a system administrator token
  tokengen access -key "my-local-signing-key" -roles "System-Administrator"

  # Mint a tenant administrator token for a known tenant
  tokengen access -key "my-local-signing-key" -roles "8e2c...:Tenant-Administrator" -ttl 1h

  # Inspect a token, tolerating expiry
  tokengen inspect -key "my-local-signing-key" -allow-expired <token>

Use "tokengen <command> -h" for more information about a command.`)
}

func mintAccessToken(key, userID, email, firstName, lastName, roles string, ttl time.Duration, jsonOutput bool) {
	if key == "" {
		fatal("a signing key is required; pass -key")
	}

	uid := parseOrGenerateUserID(userID)
	claims, err := parseRoles(roles)
	if err != nil {
		fatal("invalid -roles: %v", err)
	}

	signer, err := token.NewSigner(key, defaultIssuer, ttl)
	if err != nil {
		fatal("configure signer: %v", err)
	}

	user := &models.User{ID: uid, Email: email, FirstName: firstName, LastName: lastName}
	signed, err := signer.Sign(user, claims, time.Now())
	if err != nil {
		fatal("sign token: %v", err)
	}

	if jsonOutput {
		roleClaims := make([]map[string]string, 0, len(claims))
		for _, c := range claims {
			roleClaims = append(roleClaims, map[string]string{
				"tenantId": c.TenantID.String(),
				"roleId":   c.RoleID.String(),
				"roleName": c.RoleName,
			})
		}
		printJSON(tokenOutput{
			Token:     signed,
			Type:      "access_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub":          uid.String(),
				"email":        email,
				"name":         strings.TrimSpace(firstName + " " + lastName),
				"tenant_roles": roleClaims,
			},
			Usage: "stored server-side on the session; the browser only carries the session cookie",
		})
		return
	}

	fmt.Println("Access Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Expires In: %s\n", ttl)
	fmt.Printf("User ID:    %s\n", uid)
	fmt.Printf("Email:      %s\n", email)
	for _, c := range claims {
		fmt.Printf("Role:       %s in tenant %s\n", c.RoleName, c.TenantID)
	}
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(signed)
}

func mintRefreshToken(jsonOutput bool) {
	gen := token.NewGenerator(func(context.Context, string) (bool, error) { return false, nil })
	value, err := gen.Generate(context.Background())
	if err != nil {
		fatal("generate refresh token: %v", err)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token: value,
			Type:  "refresh_token",
			Usage: "insert into the refresh_tokens table to make it redeemable",
		})
		return
	}

	fmt.Println("Refresh Token (opaque)")
	fmt.Println("======================")
	fmt.Println(value)
}

func inspectToken(key string, allowExpired bool, raw string) {
	if key == "" {
		fatal("a signing key is required; pass -key")
	}
	if raw == "" {
		fatal("a token argument is required")
	}

	signer, err := token.NewSigner(key, defaultIssuer, defaultTokenTTL)
	if err != nil {
		fatal("configure signer: %v", err)
	}

	var claims *token.AccessClaims
	if allowExpired {
		claims, err = signer.ParseExpired(raw)
	} else {
		claims, err = signer.Parse(raw)
	}
	if err != nil {
		fatal("parse token: %v", err)
	}

	roles, err := claims.DecodeTenantRoles()
	if err != nil {
		fatal("decode tenant roles: %v", err)
	}

	fmt.Printf("Subject:  %s\n", claims.Subject)
	fmt.Printf("Name:     %s\n", claims.Name)
	fmt.Printf("Email:    %s\n", claims.Email)
	fmt.Printf("Issuer:   %s\n", claims.Issuer)
	if claims.ExpiresAt != nil {
		fmt.Printf("Expires:  %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	for _, r := range roles {
		fmt.Printf("Role:     %s in tenant %s\n", r.RoleName, r.TenantID)
	}
}

func parseOrGenerateUserID(input string) id.UserID {
	if input == "" {
		return id.NewUserID()
	}
	parsed, err := id.ParseUserID(input)
	if err != nil {
		fatal("invalid -user-id: %v", err)
	}
	return parsed
}

// parseRoles accepts entries of the form "roleName" or "tenantID:roleName".
// A bare role name is granted in a freshly generated tenant.
func parseRoles(roles string) ([]models.TenantRoleClaim, error) {
	if roles == "" {
		return nil, nil
	}
	parts := strings.Split(roles, ",")
	claims := make([]models.TenantRoleClaim, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tenantID := id.NewTenantID()
		roleName := part
		if idx := strings.LastIndex(part, ":"); idx >= 0 {
			parsed, err := id.ParseTenantID(part[:idx])
			if err != nil {
				return nil, fmt.Errorf("tenant %q: %w", part[:idx], err)
			}
			tenantID = parsed
			roleName = part[idx+1:]
		}
		claims = append(claims, models.TenantRoleClaim{
			TenantID: tenantID,
			RoleID:   id.NewRoleID(),
			RoleName: roleName,
		})
	}
	return claims, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode JSON: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
