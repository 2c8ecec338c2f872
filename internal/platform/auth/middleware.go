package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	ActorIDKey contextKey = "actor_id"
	RoleKey    contextKey = "actor_role"
)

// Claims carried by access tokens. Subject is the actor's UUID; Role is the
// actor's role name (admin, doctor or patient).
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
}

// JWTMiddleware validates bearer tokens and places the actor's identity and
// role on the request context. Downstream authorization (route guards and the
// per-appointment capability rule) trusts these values.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}

			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			actorID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a valid id")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, ActorIDKey, actorID)
			ctx = context.WithValue(ctx, RoleKey, strings.ToLower(claims.Role))
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// devActorID identifies unauthenticated requests in development mode.
var devActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// DevAuthMiddleware is a permissive middleware for development that allows
// unauthenticated requests with admin defaults.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				ctx := c.Request().Context()
				ctx = context.WithValue(ctx, ActorIDKey, devActorID)
				ctx = context.WithValue(ctx, RoleKey, "admin")
				c.SetRequest(c.Request().WithContext(ctx))
				return next(c)
			}
			// If a token is provided, pass it through untouched
			return next(c)
		}
	}
}

// ActorIDFromContext returns the authenticated actor's id, or uuid.Nil when
// the request carried no identity.
func ActorIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ActorIDKey).(uuid.UUID)
	return id
}

// RoleFromContext returns the authenticated actor's role name, or "".
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	return role
}
