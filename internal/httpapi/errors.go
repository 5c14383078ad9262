package httpapi

import (
	"encoding/json"
	"net/http"

	"imaged/pkg/types"
)

// writeJSONError writes a consistent JSON error payload with a stable kind.
func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Kind: kind, Code: status})
}
