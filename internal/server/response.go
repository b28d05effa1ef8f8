package server

import (
	"encoding/json"
	"log"
	"net/http"
)

type errorBody struct {
	Message                   string `json:"message"`
	Code                      int    `json:"code"`
	RetryAfterMs              *int64 `json:"retry_after_ms,omitempty"`
	MillisecondsToNextRequest *int64 `json:"milliseconds_to_next_request,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Message: msg, Code: status}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("encoding response: %v", err)
		http.Error(w, msgInternalError, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}
