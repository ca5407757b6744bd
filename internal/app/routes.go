package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Sync
	r.HandleFunc("/api/watch/notifications", deps.SyncHandler.Notify).Methods("POST")
	r.HandleFunc("/api/sync", deps.SyncHandler.Sync).Methods("POST")
	r.HandleFunc("/api/watch", deps.ChannelHandler.Unsubscribe).Methods("DELETE")

	// Report
	r.HandleFunc("/api/report", deps.ReportHandler.GetReport).Methods("GET")

	// User management
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/user", deps.UserHandler.CreateUser).Methods("POST")

	// Google integration
	r.HandleFunc("/api/integrations/google/auth/login", deps.GoogleAuth.OAuthLogin).Methods("GET")
	r.HandleFunc("/api/integrations/google/auth/logout", deps.GoogleAuth.OAuthLogout).Methods("DELETE")
	r.HandleFunc("/api/integrations/google/auth/callback", deps.GoogleAuth.OAuthCallback).Methods("GET")

	// Metrics
	r.Handle("/metrics", deps.Instrumentation.Handler()).Methods("GET")
}
