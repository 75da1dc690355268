// Package auth issues and validates the JWT tokens protecting the local API.
// This guards the management surface of the app itself; exchange credentials
// live in the credentials package.
package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bonsaidca/bonsai/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Credentials represents the API authentication credentials
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id"`
}

// Service handles authentication for the management API.
type Service struct {
	jwtSecret      []byte
	apiCredentials map[string]string // map[APIKey]APISecret
}

// NewService creates an authentication service signing tokens with the given
// secret.
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret:      []byte(jwtSecret),
		apiCredentials: make(map[string]string),
	}
}

// RegisterAPICredentials installs an API keypair allowed to request tokens.
func (s *Service) RegisterAPICredentials(apiKey, apiSecret string) {
	s.apiCredentials[apiKey] = apiSecret
}

// Secret exposes the signing secret for the JWT middleware.
func (s *Service) Secret() []byte {
	return s.jwtSecret
}

// GenerateToken generates a 24-hour JWT for valid API credentials.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	secret, exists := s.apiCredentials[creds.APIKey]
	if !exists || secret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(24 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		ClientID: creds.APIKey,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken verifies a token's signature and expiration.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GenerateTokenHandler handles POST requests to exchange API credentials for
// a JWT.
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
