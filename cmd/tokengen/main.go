// Package main implements tokengen, a helper that issues HS256 access tokens
// the gateway accepts. It is meant for local development and smoke tests.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/letsplay/gateway/internal/auth"
	"github.com/letsplay/gateway/internal/auth/jwt"
)

// defaultSecretEnv matches the variable the env secrets provider reads for
// the default jwt-secret path.
const defaultSecretEnv = "GATEWAY_SECRET_JWT_SECRET"

type options struct {
	userID    string
	email     string
	role      string
	ttl       time.Duration
	secretEnv string
	issuer    string
	audience  string
}

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)

	var o options
	fs.StringVar(&o.userID, "user-id", "", "Subject of the token (required)")
	fs.StringVar(&o.email, "email", "", "Email claim")
	fs.StringVar(&o.role, "role", string(auth.RoleClient), "Role claim (seller, client, admin)")
	fs.DurationVar(&o.ttl, "ttl", jwt.DefaultTokenTTL, "Token lifetime")
	fs.StringVar(&o.secretEnv, "secret-env", defaultSecretEnv, "Environment variable holding the HMAC secret")
	fs.StringVar(&o.issuer, "issuer", "", "Issuer claim")
	fs.StringVar(&o.audience, "audience", "", "Audience claim")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.userID == "" {
		return options{}, fmt.Errorf("-user-id is required")
	}
	return o, nil
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	o, err := parseOptions(args)
	if err != nil {
		return err
	}

	role, err := auth.ParseRole(o.role)
	if err != nil {
		return err
	}

	secret := getenv(o.secretEnv)
	if secret == "" {
		return fmt.Errorf("environment variable %s is empty", o.secretEnv)
	}

	signer, err := jwt.NewSigner([]byte(secret),
		jwt.WithTokenTTL(o.ttl),
		jwt.WithSignerIssuer(o.issuer),
		jwt.WithSignerAudience(o.audience),
	)
	if err != nil {
		return err
	}

	token, err := signer.Sign(o.userID, o.email, role)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
