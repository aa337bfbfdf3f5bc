package jwt

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/auth"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/user"
	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	TokenTypeAccess = "access"
	TokenTypeStream = "stream"

	streamTokenTTL = 5 * time.Minute
)

// Claims is the typed view of the claims this service relies on.
type Claims struct {
	UserID     string
	Email      string
	EmployeeID *string
	Role       user.Role
	Type       string
}

type Service interface {
	GenerateAccessToken(userID string, email string, employeeID *string, role user.Role) (token string, expiresAt int64, err error)
	GenerateStreamToken(userID string, employeeID string) (token string, expiresAt time.Time, err error)
	ValidateStreamToken(tokenString string) (Claims, error)
	JWTAuth() *jwtauth.JWTAuth
}

type JWTService struct {
	accessTokenExpirationTime string
	tokenAuth                 *jwtauth.JWTAuth
	now                       func() time.Time
}

func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func NewJWTService(secretKey string, accessTokenExpirationTime string) Service {
	return &JWTService{
		accessTokenExpirationTime: accessTokenExpirationTime,
		tokenAuth:                 jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(30*time.Second)),
		now:                       time.Now,
	}
}

func (j *JWTService) GenerateAccessToken(userID string, email string, employeeID *string, role user.Role) (token string, expiresAt int64, err error) {
	expDuration, err := time.ParseDuration(j.accessTokenExpirationTime)
	if err != nil {
		return "", 0, err
	}
	expiresAt = j.now().Add(expDuration).Unix()

	_, tokenString, err := j.tokenAuth.Encode(map[string]interface{}{
		"user_id":     userID,
		"email":       email,
		"employee_id": returnValueOrNil(employeeID),
		"role":        string(role),
		"type":        TokenTypeAccess,
		"exp":         expiresAt,
	})
	return tokenString, expiresAt, err
}

// GenerateStreamToken issues a short-lived token that can travel in a query
// string, since EventSource cannot set headers.
func (j *JWTService) GenerateStreamToken(userID string, employeeID string) (token string, expiresAt time.Time, err error) {
	expiresAt = j.now().Add(streamTokenTTL)

	_, tokenString, err := j.tokenAuth.Encode(map[string]interface{}{
		"user_id":     userID,
		"employee_id": employeeID,
		"type":        TokenTypeStream,
		"exp":         expiresAt.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateStreamToken verifies a stream token and returns its claims
func (j *JWTService) ValidateStreamToken(tokenString string) (Claims, error) {
	token, err := jwtauth.VerifyToken(j.tokenAuth, tokenString)
	if err != nil {
		return Claims{}, auth.ErrInvalidToken
	}

	claims, err := ParseClaims(token.PrivateClaims())
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != TokenTypeStream {
		return Claims{}, auth.ErrInvalidTokenType
	}
	if claims.EmployeeID == nil {
		return Claims{}, auth.ErrMissingClaims
	}

	return claims, nil
}

// ParseClaims reads the private claims set by this package.
func ParseClaims(raw map[string]interface{}) (Claims, error) {
	var c Claims

	userID, ok := raw["user_id"].(string)
	if !ok || userID == "" {
		return Claims{}, auth.ErrMissingClaims
	}
	c.UserID = userID
	c.Email, _ = raw["email"].(string)
	c.Type, _ = raw["type"].(string)

	if employeeID, ok := raw["employee_id"].(string); ok && employeeID != "" {
		c.EmployeeID = &employeeID
	}

	if role, ok := raw["role"].(string); ok {
		c.Role = user.Role(role)
	}

	return c, nil
}

// ClaimsFromContext returns the claims jwtauth.Verifier stored in ctx.
func ClaimsFromContext(ctx context.Context) (Claims, error) {
	_, raw, err := jwtauth.FromContext(ctx)
	if err != nil {
		return Claims{}, auth.ErrInvalidToken
	}
	return ParseClaims(raw)
}

func returnValueOrNil(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}
