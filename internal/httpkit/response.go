package httpkit

import (
	"encoding/json"
	"net/http"
)

// MaxBodyBytes caps request bodies; printImage payloads can be large data URLs.
const MaxBodyBytes = 16 << 20

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// LimitBody wraps r.Body so reads past MaxBodyBytes fail.
func LimitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
}
