package api

import (
	"drt-simulator/internal/api/handlers"
	"net/http"
)

// NewRouter serves the outputs of one finished run.
func NewRouter(reports handlers.ReportReader) http.Handler {
	mux := http.NewServeMux()

	runHandler := &handlers.RunHandler{Reports: reports}

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/summary", runHandler.Summary)
	mux.HandleFunc("/vehicles", runHandler.Vehicles)
	mux.HandleFunc("/vehicles/{id}/occupancy", runHandler.Occupancy)

	return loggingMiddleware(mux)
}
