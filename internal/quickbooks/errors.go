package quickbooks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx ledger response. RequestBody keeps the document
// that was sent so failures can be diagnosed from sync history.
type APIError struct {
	Method       string
	Path         string
	StatusCode   int
	Code         string
	Message      string
	Detail       string
	RequestBody  any
	ResponseBody json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("quickbooks request failed: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("quickbooks request failed: status=%d message=%s", e.StatusCode, e.Message)
}

// Temporary reports whether repeating the call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func NewAPIError(method, path string, resp *Response, requestBody any) *APIError {
	apiErr := &APIError{
		Method:       method,
		Path:         path,
		StatusCode:   resp.StatusCode,
		Message:      strings.TrimSpace(string(resp.Body)),
		RequestBody:  requestBody,
		ResponseBody: resp.Body,
	}
	if code, message, detail, ok := ParseFault(resp.Body); ok {
		apiErr.Code = code
		apiErr.Message = message
		apiErr.Detail = detail
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

type faultError struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
}

// ParseFault extracts the first error of a QBO fault body. encoding/json
// matches keys case-insensitively, so both {"Fault":{"Error":[...]}} and the
// lower-case form some endpoints return decode here.
func ParseFault(body []byte) (code, message, detail string, ok bool) {
	var parsed struct {
		Fault struct {
			Error []faultError `json:"Error"`
		} `json:"Fault"`
	}
	if json.Unmarshal(body, &parsed) != nil || len(parsed.Fault.Error) == 0 {
		return "", "", "", false
	}
	e := parsed.Fault.Error[0]
	return e.Code, e.Message, e.Detail, true
}
