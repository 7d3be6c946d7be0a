package utils

import (
	"encoding/json"
	"net/http"
)

// PtrInt dereferences i, treating nil as zero.
func PtrInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteJSONError(w http.ResponseWriter, message string, code int) {
	WriteJSON(w, code, map[string]string{"error": message})
}
