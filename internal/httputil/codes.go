package httputil

// Machine-readable error codes returned in ErrorResponse.Code
const (
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeNotFound           = "NOT_FOUND"

	CodeEmailAlreadyExists    = "EMAIL_ALREADY_EXISTS"
	CodeRoleNotAllowed        = "ROLE_NOT_ALLOWED"
	CodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeEmailNotVerified      = "EMAIL_NOT_VERIFIED"
	CodePendingApproval       = "PENDING_APPROVAL"
	CodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	CodeEmailAlreadyVerified  = "EMAIL_ALREADY_VERIFIED"

	CodeMissingAuth       = "MISSING_AUTHENTICATION"
	CodeInvalidAuthHeader = "INVALID_AUTH_HEADER"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeForbidden         = "FORBIDDEN"
)
