package api

import (
	"net/http"

	"github.com/jmcleod/hubuum-bff/internal/httpjson"
	"github.com/jmcleod/hubuum-bff/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	httpjson.Write(w, status, v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	httpjson.Error(w, status, code, msg)
}

// writeInternalError logs the real error and sends the client a generic 500
// so internal details never leak.
func writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.FromContext(r.Context()).Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, httpjson.CodeInternal, "internal server error")
}
