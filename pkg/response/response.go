package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/universityofengineers/sms-api/pkg/errors"
)

// Envelope represents the common response contract. List endpoints are
// unpaginated: the directories this API serves are small by design.
type Envelope struct {
	Data      interface{}            `json:"data,omitempty"`
	Error     *appErrors.Error       `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response.
func JSON(c *gin.Context, status int, data interface{}, meta ...map[string]interface{}) {
	c.Header("Cache-Control", "no-store")
	envelope := Envelope{Data: data, Timestamp: time.Now().UTC()}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// Message responds 200 with a human-readable confirmation.
func Message(c *gin.Context, msg string) {
	JSON(c, http.StatusOK, gin.H{"message": msg})
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.JSON(appErr.Status, Envelope{Error: appErr, Timestamp: time.Now().UTC()})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
