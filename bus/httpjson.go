package bus

import (
	"encoding/json"
	"net/http"
)

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON and WriteJSON are shared by the hub handlers so the wire
// shape is produced in exactly one place.
func DecodeJSON(r *http.Request, v any) error { return decodeJSON(r, v) }
func WriteJSON(w http.ResponseWriter, v any)  { writeJSON(w, v) }
