package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	flasherrors "flashsettle/core/errors"
	"flashsettle/native/flashloan"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var kindStatus = map[string]int{
	"InvalidProtocol":       http.StatusBadRequest,
	"AmountTooLow":          http.StatusBadRequest,
	"InvalidFeeRate":        http.StatusBadRequest,
	"UnallowedAsset":        http.StatusBadRequest,
	"IndexOutOfBounds":      http.StatusBadRequest,
	"AssetTypeMismatch":     http.StatusBadRequest,
	"AmountOverflow":        http.StatusBadRequest,
	"Forbidden":             http.StatusForbidden,
	"Paused":                http.StatusServiceUnavailable,
	"InsufficientLiquidity": http.StatusUnprocessableEntity,
}

// statusFor maps an engine error to an HTTP status using its taxonomy kind.
func statusFor(err error) (int, string) {
	if errors.Is(err, flashloan.ErrNotInitialised) {
		return http.StatusServiceUnavailable, "NotInitialised"
	}
	kind := flasherrors.Kind(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, kind
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	writeError(w, status, kind, err.Error())
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "BadRequest", message)
}
