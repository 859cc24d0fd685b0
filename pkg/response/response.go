package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Success sends data as a 200 response body.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends data as a 201 response body.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Error sends an error response and aborts the handler chain.
func Error(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorBody{
		Error: message,
		Code:  code,
	})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, "FORBIDDEN", message)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, "CONFLICT", message)
}

// TooManyRequests sends a 429 error response.
func TooManyRequests(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, "RATE_LIMITED", message)
}

// UsageLimit sends a 429 response tagged as a usage limit error so
// clients can show the upgrade prompt.
func UsageLimit(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorBody{
		Error: message,
		Code:  code,
		Type:  "USAGE_LIMIT_ERROR",
	})
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// BadGateway sends a 502 error response for upstream failures.
func BadGateway(c *gin.Context, message string) {
	Error(c, http.StatusBadGateway, "UPSTREAM_ERROR", message)
}

// ErrorWith sends body with extra fields merged in and aborts the handler chain.
func ErrorWith(c *gin.Context, statusCode int, body ErrorBody, fields gin.H) {
	out := gin.H{"error": body.Error}
	if body.Code != "" {
		out["code"] = body.Code
	}
	if body.Type != "" {
		out["type"] = body.Type
	}
	for k, v := range fields {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	c.AbortWithStatusJSON(statusCode, out)
}
