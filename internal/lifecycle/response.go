package lifecycle

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind classifies a failed Response.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindIntegrity  Kind = "integrity"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
)

// Response is the structured result of every inbound operation.
type Response struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	DataStoreID   string `json:"dataStoreId,omitempty"`
	JobID         string `json:"jobId,omitempty"`
	NDJSONFileKey string `json:"ndjson_file_key,omitempty"`
	Kind          Kind   `json:"-"`
}

func ok(format string, args ...any) Response {
	return Response{Success: true, Message: fmt.Sprintf(format, args...)}
}

func fail(kind Kind, format string, args ...any) Response {
	return Response{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// JSON encodes the response the way resolver callers expect it: a JSON string.
func (r Response) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"message":"response encoding failed"}`
	}
	return string(b)
}

func (r Response) HTTPStatus() int {
	if r.Success {
		return http.StatusOK
	}
	switch r.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindIntegrity:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
