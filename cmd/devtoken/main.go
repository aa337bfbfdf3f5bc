// Command devtoken mints an access token for local testing. Token issuance
// belongs to the identity service in production.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/jwt"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	var (
		userID     = flag.String("user", "", "user id (random when empty)")
		employeeID = flag.String("employee", "", "employee id linked to the token")
		email      = flag.String("email", "dev@example.com", "email claim")
		role       = flag.String("role", string(user.RoleEmployee), "admin, hr or employee")
		expiry     = flag.String("exp", "8h", "token lifetime")
	)
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET_KEY is required")
		os.Exit(1)
	}

	r := user.Role(*role)
	if !r.Valid() {
		fmt.Fprintf(os.Stderr, "invalid role %q\n", *role)
		os.Exit(1)
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}
	var emp *string
	if *employeeID != "" {
		emp = employeeID
	}

	token, _, err := jwt.NewJWTService(secret, *expiry).GenerateAccessToken(*userID, *email, emp, r)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
