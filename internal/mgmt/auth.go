package mgmt

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Role defines the access level of a caller.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "readonly"
)

// Auth modes.
const (
	AuthModeAPIKey = "api-key"
	AuthModeJWT    = "jwt"
	AuthModeNone   = "none"
)

const (
	localRole    = "role"
	localSubject = "subject"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode      string          // api-key, jwt or none
	APIKey    string          // from env MGMT_API_KEY
	JWTSecret string          // HS256 secret, from env MGMT_JWT_SECRET
	Roles     map[string]Role // extra api keys and their roles
}

var roleLevel = map[Role]int{
	RoleReadOnly: 1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// NewAuthMiddleware returns a Fiber middleware that validates the Authorization header.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	mode := strings.ToLower(cfg.Mode)
	secret := []byte(cfg.JWTSecret)

	return func(c *fiber.Ctx) error {
		if mode == AuthModeNone {
			c.Locals(localRole, RoleAdmin)
			c.Locals(localSubject, "anonymous")
			return c.Next()
		}

		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if mode == AuthModeJWT {
			subject, role, err := parseToken(token, secret)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("unauthorized request: invalid token")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_token", "Unauthorized",
					"Invalid or expired token")
			}
			c.Locals(localRole, role)
			c.Locals(localSubject, subject)
			return c.Next()
		}

		if cfg.APIKey != "" && token == cfg.APIKey {
			c.Locals(localRole, RoleAdmin)
			c.Locals(localSubject, "api-key")
			return c.Next()
		}
		if role, ok := cfg.Roles[token]; ok {
			c.Locals(localRole, role)
			c.Locals(localSubject, "api-key:"+string(role))
			return c.Next()
		}

		logger.Warn().
			Str("path", path).
			Str("method", c.Method()).
			Msg("unauthorized request: invalid API key")

		return problemResponse(c, fiber.StatusUnauthorized,
			"invalid_api_key", "Unauthorized",
			"Invalid API key")
	}
}

// parseToken validates an HS256 token and returns its subject and role.
// Tokens without a known role claim get read-only access.
func parseToken(raw string, secret []byte) (string, Role, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", err
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return "", "", err
	}
	if subject == "" {
		return "", "", errors.New("token has no subject")
	}

	role := RoleReadOnly
	if r, ok := claims["role"].(string); ok {
		if _, known := roleLevel[Role(r)]; known {
			role = Role(r)
		}
	}
	return subject, role, nil
}

// requireRole returns a middleware that enforces a minimum role level.
func requireRole(minRole Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(localRole).(Role)
		if roleLevel[role] < roleLevel[minRole] {
			return problemResponse(c, fiber.StatusForbidden,
				"insufficient_role", "Forbidden",
				"Insufficient permissions for this operation")
		}
		return c.Next()
	}
}

// actor names the caller in audit entries.
func actor(c *fiber.Ctx) string {
	if s, ok := c.Locals(localSubject).(string); ok && s != "" {
		return "mgmt:" + s
	}
	return "mgmt"
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
