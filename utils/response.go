package utils

import "github.com/gin-gonic/gin"

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Respond writes a successful JSON body: payload keys plus success=true.
func Respond(ctx *gin.Context, status int, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	ctx.JSON(status, body)
}

// Success returns a standard 200 response.
func Success(ctx *gin.Context, payload gin.H) {
	Respond(ctx, 200, payload)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	ctx.JSON(status, ErrorResponse{
		Success: false,
		Code:    code,
		Message: message,
	})
}
