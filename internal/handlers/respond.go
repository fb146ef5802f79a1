// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"contractbuilder/internal/compiler"
	"contractbuilder/internal/contracts"
	"contractbuilder/internal/variables"
)

// maxBodyBytes caps request bodies. Template sources are the largest input.
const maxBodyBytes = 1 << 20

// Error codes returned in the "code" field of error responses.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeCompileFailed    = "COMPILE_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInternal         = "INTERNAL"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps a service error to its HTTP status and error code.
// Unexpected errors are logged and reported without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *variables.ValidationError
		cerr *compiler.CompileError
	)
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, CodeNotFound, "template not found")
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: errorDetail{
			Code:    CodeValidationFailed,
			Message: "one or more values are invalid",
			Fields:  verr.Fields,
		}})
	case errors.As(err, &cerr):
		status := http.StatusBadGateway
		if cerr.Timeout {
			status = http.StatusGatewayTimeout
		}
		writeErrorCode(w, status, CodeCompileFailed, cerr.Message)
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"error", err,
		)
		writeErrorCode(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// decodeJSON reads a JSON request body into dst. An empty body leaves dst
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: unexpected trailing data")
	}
	return nil
}
