package response

// ErrCode is a typed error kind for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Uploads ───────────────────────────────────────────────────────
	ErrFileRequired   ErrCode = "FILE_REQUIRED"
	ErrInvalidFile    ErrCode = "INVALID_FILE"
	ErrMissingColumns ErrCode = "MISSING_COLUMNS"
	ErrFileTooLarge   ErrCode = "FILE_TOO_LARGE"
	ErrNoValidRows    ErrCode = "NO_VALID_ROWS"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound          ErrCode = "NOT_FOUND"
	ErrOperationNotFound ErrCode = "OPERATION_NOT_FOUND"
	ErrConflict          ErrCode = "CONFLICT"

	// ─── Enrollment ────────────────────────────────────────────────────
	ErrCapacityExceeded ErrCode = "CAPACITY_EXCEEDED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrPermissionDenied:
		return "Permission denied."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Uploads ───────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrInvalidFile:
		return "Only CSV or XLSX files are allowed."
	case ErrMissingColumns:
		return "Required columns are missing."
	case ErrFileTooLarge:
		return "File size exceeds the limit."
	case ErrNoValidRows:
		return "No valid rows found in CSV."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrOperationNotFound:
		return "Operation not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Enrollment ────────────────────────────────────────────────────
	case ErrCapacityExceeded:
		return "Not enough spots available."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
