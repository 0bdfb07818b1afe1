// Package httpapi maps external HTTP calls to service requests and enforces per-endpoint policy.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package httpapi

import (
	"net/http"

	"github.com/pixelvault/pixelvault/cmn"
)

// statusFor maps the error taxonomy to HTTP statuses: Unauthorized ->
// 401, Malformed/Invalid -> 400, NotFound -> 404, Conflict -> 409,
// everything else -> 500 with a generic message.
func statusFor(err error) int {
	switch {
	case cmn.Is(err, cmn.KindUnauthorized):
		return http.StatusUnauthorized
	case cmn.Is(err, cmn.KindMalformed), cmn.Is(err, cmn.KindInvalid):
		return http.StatusBadRequest
	case cmn.Is(err, cmn.KindNotFound):
		return http.StatusNotFound
	case cmn.Is(err, cmn.KindConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if status == http.StatusInternalServerError {
		// Generic message outward; the real cause goes to the log only.
		s.log.WithField("op", op).Errorf("internal error: %v", err)
		body.Error = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
