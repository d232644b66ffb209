package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Form describes the fields a POST to the same path expects. GET on a form
// route answers with it.
func Form(c *gin.Context, fields ...string) {
	OK(c, gin.H{"fields": fields})
}

// Fail sends status with an error message.
func Fail(c *gin.Context, status int, err string) {
	c.JSON(status, Body{Success: false, Error: err})
}

func BadRequest(c *gin.Context, err string)         { Fail(c, http.StatusBadRequest, err) }
func Unauthorized(c *gin.Context, err string)       { Fail(c, http.StatusUnauthorized, err) }
func Forbidden(c *gin.Context, err string)          { Fail(c, http.StatusForbidden, err) }
func TooManyRequests(c *gin.Context, err string)    { Fail(c, http.StatusTooManyRequests, err) }
func ServiceUnavailable(c *gin.Context, err string) { Fail(c, http.StatusServiceUnavailable, err) }
func Internal(c *gin.Context, err string)           { Fail(c, http.StatusInternalServerError, err) }
