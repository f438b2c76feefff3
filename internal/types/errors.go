package types

// REST error codes
const (
	CodeBridgeUnavailable = "BRIDGE_503"
	CodeJournalDisabled   = "JOURNAL_503"
	CodeJournalBadRequest = "JOURNAL_400"
	CodeJournalReadFailed = "JOURNAL_500"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds the API error payload.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewErrorResponseFromError puts err's text into details. A nil err leaves them empty.
func NewErrorResponseFromError(code, message string, err error) ErrorResponse {
	var details any
	if err != nil {
		details = err.Error()
	}
	return NewErrorResponse(code, message, details)
}
