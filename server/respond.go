package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/telemetry"
)

const maxBodyBytes = 1 << 20

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, success bool, msg string) {
	writeJSON(w, status, envelope{Success: success, Message: msg})
}

// writeError maps err to its status and public message. Internal errors are
// logged with the request's correlation id and never shown to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		telemetry.LoggerWithCorr(r.Context()).Error("request failed",
			slog.String("method", r.Method), slog.String("path", r.URL.Path),
			slog.String("component", "http"), slog.Any("err", err))
	}
	writeMessage(w, kind.HTTPStatus(), false, apperr.PublicMessage(err))
}

// decodeJSON reads a JSON body into dst. When optional is set an empty body
// is accepted and leaves dst untouched.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.InvalidRequest, err, "Invalid JSON body.")
	}
	return nil
}

// forceParam reads the privileged force flag from the query string.
func forceParam(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("force")
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperr.New(apperr.InvalidRequest, "force must be a boolean.")
	}
	return b, nil
}

// pageParam reads the 1-based page number, defaulting to 1.
func pageParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("page")
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.New(apperr.InvalidRequest, "Page must be a positive integer.")
	}
	return n, nil
}
