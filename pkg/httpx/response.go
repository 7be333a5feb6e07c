package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the console API response body.
type Envelope struct {
	Code int    `json:"code"`
	Data any    `json:"data,omitempty"`
	Msg  string `json:"msg,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteOK writes a success envelope (code 1000) with HTTP 200.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Code: 1000, Data: data, Msg: "success"})
}

// WriteCode writes an application level failure: HTTP 200 with a non-success
// envelope code, the way the console API reports rejected input.
func WriteCode(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, http.StatusOK, Envelope{Code: code, Msg: msg})
}

// WriteStatus writes an HTTP error whose envelope code mirrors the status.
func WriteStatus(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Envelope{Code: status, Msg: msg})
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
