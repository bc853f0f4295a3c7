package errors

const (
	HttpInternalError    = "internal_error"
	HttpInvalidJsonError = "invalid_json"
	HttpUnknownSiteError = "unknown_site"
	HttpEmptyBatchError  = "empty_batch"
	HttpNotFoundError    = "not_found"
)

// ErrorResponse is the error response body for all collector endpoints.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
