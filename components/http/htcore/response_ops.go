package htcore

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/open-control-systems/device-poller/components/core"
)

// WriteText writes text to HTTP response.
func WriteText(w http.ResponseWriter, code int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(text)))

	w.WriteHeader(code)

	if _, err := w.Write([]byte(text)); err != nil {
		core.LogErr.Printf("http-server: failed to write response: %v\n", err)
	}
}

// WriteJSON writes v encoded as JSON to HTTP response.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))

	w.WriteHeader(code)

	if _, err := w.Write(data); err != nil {
		core.LogErr.Printf("http-server: failed to write response: %v\n", err)
	}
}
