// devtoken mints an access token for calling a local server. It signs with
// JWT_SECRET from the environment or .env, the same secret the server reads.
//
//	devtoken --holder 42
//	devtoken --holder 1 --role OWNER --ttl 8h
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
	"github.com/iliyamo/seat-reservation-engine/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	var (
		holder uint64
		role   string
		ttl    time.Duration
		asJSON bool
	)
	fs := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	fs.Uint64Var(&holder, "holder", 0, "holder id placed in the sub claim (required)")
	fs.StringVar(&role, "role", middleware.RoleCustomer, "role claim: CUSTOMER or OWNER")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	fs.BoolVar(&asJSON, "json", false, "print the token and its expiry as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if role != middleware.RoleCustomer && role != middleware.RoleOwner {
		return fmt.Errorf("unknown role %q", role)
	}
	if ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), holder, role, ttl)
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(tok)
	}
	fmt.Println(tok.Token)
	return nil
}
