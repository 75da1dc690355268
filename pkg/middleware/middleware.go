package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/bonsaidca/bonsai/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.Mutex

	// Limits per endpoint class. Order placement is deliberately the
	// tightest: every manual order is an exchange round-trip.
	authLimit   = rate.Limit(10.0 / 60.0)  // 10 requests per minute
	orderLimit  = rate.Limit(30.0 / 60.0)  // 30 requests per minute
	manageLimit = rate.Limit(300.0 / 60.0) // 300 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientID string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientID + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/orders/manual"):
			limit = orderLimit
		case strings.HasPrefix(path, "/api/v1"):
			limit = manageLimit
		default:
			limit = rate.Inf
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 5),
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit throttles callers per client and path class.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			clientID = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), clientID)
		if !limiter.Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth verifies the bearer token against the given signing secret and
// stores the claims on the request context.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearerToken := strings.Split(c.GetHeader("Authorization"), " ")
		if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
			response.Unauthorized(c, "Invalid authorization header")
			c.Abort()
			return
		}

		token, err := jwt.Parse(bearerToken[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			response.Unauthorized(c, "Invalid token claims")
			c.Abort()
			return
		}

		requiredClaims := []string{"client_id", "exp"}
		for _, claim := range requiredClaims {
			if _, exists := claims[claim]; !exists {
				response.Unauthorized(c, fmt.Sprintf("Missing required claim: %s", claim))
				c.Abort()
				return
			}
		}

		c.Set("claims", claims)
		if clientID, ok := claims["client_id"].(string); ok {
			c.Set("clientID", clientID)
		}

		c.Next()
	}
}
