// Command devtoken mints an access token for local development, in the shape
// the API's JWT middleware accepts.
//
//	go run ./cmd/devtoken -sub user-1 -role CUSTOMER
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "", "subject (user id) of the token")
	role := flag.String("role", middleware.RoleCustomer, "role claim: CUSTOMER, STAFF or ORGANIZER")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to $JWT_SECRET)")
	flag.Parse()

	switch *role {
	case middleware.RoleCustomer, middleware.RoleStaff, middleware.RoleOrganizer:
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	tok, err := utils.NewAccessToken(*secret, *sub, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
