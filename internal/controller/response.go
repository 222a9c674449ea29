package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := appErrors.CodeOf(err)
	writeJSON(w, appErrors.HTTPStatus(code), errorBody{Error: errorDetail{
		Code:    code.String(),
		Message: appErrors.MessageOf(err),
	}})
}

// decodeBody reads an optional JSON body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return appErrors.InvalidArgument("invalid body")
	}
	return nil
}
