package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the standardized API response envelope.
type Response struct {
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// ErrorBody represents a structured error response.
type ErrorBody struct {
	Kind    ErrCode           `json:"error_kind"`
	Message string            `json:"message"`
	Field   string            `json:"field,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ContextKeyErrorKind records the error kind of a failed response so the
// access log can report it.
const ContextKeyErrorKind = "error_kind"

// Metadata includes request tracing and timing.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{Data: data, Metadata: buildMetadata(c)})
}

// Fail sends an error response carrying the default message for code.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, failure(c, nil, &ErrorBody{Kind: code, Message: GetMessage(code)}))
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, failure(c, nil, &ErrorBody{Kind: code, Message: GetMessage(code), Fields: fields}))
}

// FailWithMessage sends an error response whose message carries business
// detail, such as capacity numbers or the offending column.
func FailWithMessage(c *gin.Context, statusCode int, code ErrCode, message, field string) {
	c.JSON(statusCode, failure(c, nil, &ErrorBody{Kind: code, Message: message, Field: field}))
}

// FailWithData sends an error response that also carries data, such as the
// row errors that explain why an upload had nothing to process.
func FailWithData(c *gin.Context, statusCode int, code ErrCode, message string, data interface{}) {
	c.JSON(statusCode, failure(c, data, &ErrorBody{Kind: code, Message: message}))
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, failure(c, nil, &ErrorBody{Kind: code, Message: GetMessage(code)}))
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func failure(c *gin.Context, data interface{}, body *ErrorBody) Response {
	c.Set(ContextKeyErrorKind, string(body.Kind))
	return Response{Data: data, Error: body, Metadata: buildMetadata(c)}
}

func buildMetadata(c *gin.Context) Metadata {
	id := RequestID(c)
	if id == "" {
		id = uuid.New().String() // middleware not applied
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
