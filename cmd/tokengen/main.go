// Package main mints admin bearer tokens for the certify admin API.
// The signing secret must match the server's ADMIN_JWT_SECRET.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"certify/pkg/platform/middleware/admin"
)

const (
	defaultIssuer   = "certify"
	defaultTokenTTL = time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	Subject   string            `json:"subject"`
	ExpiresAt time.Time         `json:"expires_at"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	subject := flag.String("subject", "ops", "Admin identity recorded as the token subject")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	secret := flag.String("secret", os.Getenv("ADMIN_JWT_SECRET"), "Signing secret (defaults to ADMIN_JWT_SECRET)")
	issuer := flag.String("issuer", defaultIssuer, "Token issuer")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "signing secret required: set ADMIN_JWT_SECRET or pass -secret")
		os.Exit(2)
	}

	now := time.Now()
	tokens := admin.NewTokens(*secret, *issuer, *ttl)
	token, err := tokens.Issue(*subject, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}

	if !*asJSON {
		fmt.Println(token)
		return
	}

	out := tokenOutput{
		Token:     token,
		Type:      "Bearer",
		Subject:   *subject,
		ExpiresAt: now.Add(tokens.TTL()).UTC(),
		Usage: map[string]string{
			"curl": fmt.Sprintf("curl -H 'Authorization: Bearer %s' http://localhost:8080/admin/certificates/stats", token),
		},
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
