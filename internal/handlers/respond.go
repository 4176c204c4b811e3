package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	apperr "roomchat/internal/errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}

// writeError maps err to its status. Anything that is not a domain error is
// reported as a generic server error and logged with its cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Upstream(err, apperr.ErrUpstream.Message)
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeJSON(w, r, status, errorBody{Message: apperr.ErrUpstream.Message, Code: string(apperr.CodeUpstream)})
		return
	}

	hlog.FromRequest(r).Debug().Err(err).Int("status", status).Msg("request refused")
	writeJSON(w, r, status, errorBody{Message: appErr.Message, Code: string(appErr.Code)})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("Invalid request body").WithCause(err)
}
