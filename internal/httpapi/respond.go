package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/commonshub/hubdoor/internal/hubdoor/access"
)

type errorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{OK: false, Error: code, Message: msg})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func writeDenied(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), deniedFromError(err))
}

// statusFor maps an error's kind to an HTTP status.
func statusFor(err error) int {
	switch access.KindOf(err) {
	case access.KindMalformed:
		return http.StatusBadRequest
	case access.KindUnauthorized:
		return http.StatusForbidden
	case access.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
