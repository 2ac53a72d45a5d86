package server

import (
	"github.com/gin-gonic/gin"
)

// Error codes in response bodies. Auth codes follow the auth/<kind> scheme
// clients map onto their local taxonomy.
const (
	codeUserNotFound        = "auth/user-not-found"
	codeWrongPassword       = "auth/wrong-password"
	codeEmailInUse          = "auth/email-already-in-use"
	codeInvalidEmail        = "auth/invalid-email"
	codeWeakPassword        = "auth/weak-password"
	codeTooManyRequests     = "auth/too-many-requests"
	codeOperationNotAllowed = "auth/operation-not-allowed"
	codeRequiresRecentLogin = "auth/requires-recent-login"
	codeInvalidActionCode   = "auth/invalid-action-code"
	codeUnauthenticated     = "auth/user-token-expired"
	codeForbidden           = "request/forbidden"
	codeInvalidRequest      = "request/invalid"
	codeNotFound            = "request/not-found"
	codeInvalidType         = "upload/invalid-type"
	codeOversize            = "upload/oversize"
	codeStorageFailure      = "upload/backend-failure"
	codeInternal            = "internal"
)

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": message, "code": code})
}
