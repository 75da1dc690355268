package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
)

// Handle maps a service error onto the appropriate response, treating a nil
// error as success.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		InternalError(c, err.Error())
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeNotFound,
			Message: message,
		},
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeBadRequest,
			Message: message,
		},
	})
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeUnauthorized,
			Message: message,
		},
	})
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeDuplicateResource,
			Message: message,
		},
	})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeInternalError,
			Message: message,
		},
	})
}
