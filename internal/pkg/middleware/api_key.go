package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"
)

// LocalsServiceKey holds the index of the accepted key, for access logs.
const LocalsServiceKey = "service_key_index"

type serviceKey struct {
	value  []byte
	hashed bool
}

func (k serviceKey) matches(presented []byte) bool {
	if k.hashed {
		return bcrypt.CompareHashAndPassword(k.value, presented) == nil
	}
	return subtle.ConstantTimeCompare(presented, k.value) == 1
}

// isBcryptHash reports whether a configured key is stored as a bcrypt hash
func isBcryptHash(k string) bool {
	if _, err := bcrypt.Cost([]byte(k)); err != nil {
		return false
	}
	return strings.HasPrefix(k, "$2")
}

// HashAPIKey returns the bcrypt form of a key, suitable for SERVICE_API_KEYS
func HashAPIKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(b), err
}

// APIKeyAuthMiddleware authenticates service callers carrying one of the configured keys.
// Keys may be given in clear or as bcrypt hashes. With no keys configured every request is refused.
func APIKeyAuthMiddleware(keys []string) fiber.Handler {
	accepted := make([]serviceKey, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			accepted = append(accepted, serviceKey{value: []byte(k), hashed: isBcryptHash(k)})
		}
	}
	if len(accepted) == 0 {
		log.Warn("[API] SERVICE_API_KEYS is empty; the read API will reject every request")
	}

	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		presented := []byte(apiKey)
		for i, k := range accepted {
			if k.matches(presented) {
				c.Locals(LocalsServiceKey, i)
				return c.Next()
			}
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
