package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
)

// Roles
const (
	RoleLearner = "learner"
	RoleTeacher = "teacher"
)

const contextTokenKey = "userToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

func (c Claims) IsTeacher() bool { return c.Role == RoleTeacher }

func (c Claims) Person() core.Person {
	return core.Person{ID: c.Subject, Username: c.Username, Email: c.Email}
}

// NewClaims returns the claims of a learner or teacher identified by subject.
func NewClaims(conf *core.Config, subject, role string) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: subject,
		Role:     role,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	if claims.Role != RoleLearner && claims.Role != RoleTeacher {
		return "", errors.Errorf("unknown role %q", claims.Role)
	}
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func teacherMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if !claims.IsTeacher() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

// canAccess reports whether the authenticated user may read or write a learner's resources.
func canAccess(ctx echo.Context, learnerID string) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.IsTeacher() || claims.Subject == learnerID {
		return nil
	}
	return errHttpNotFound
}
