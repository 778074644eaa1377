package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pliu/smartaid/internal/auth"
	"github.com/pliu/smartaid/internal/config"
	"github.com/pliu/smartaid/internal/handlers"
	"github.com/pliu/smartaid/internal/middleware"
	"github.com/pliu/smartaid/internal/storage"
	"github.com/pliu/smartaid/internal/store"
	"github.com/pliu/smartaid/internal/ws"
)

func newRouter(cfg config.Config, st store.Store, aiService handlers.AIService, objects storage.ObjectStore, hub *ws.Hub) http.Handler {
	signer := auth.NewCookieSigner(cfg.SessionSecret)
	requireAuth := middleware.Auth(signer)
	protect := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	authHandler := &handlers.AuthHandler{Store: st, Signer: signer}
	healthHandler := &handlers.HealthHandler{Store: st}
	plannerHandler := &handlers.PlannerHandler{Store: st}
	aiHandler := &handlers.AIHandler{Store: st, AI: aiService}
	libraryHandler := &handlers.LibraryHandler{Store: st, Objects: objects}
	groupHandler := &handlers.GroupHandler{Store: st, Hub: hub}

	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.LoggingMiddleware)

	r.HandleFunc("/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	r.HandleFunc("/healthz", healthHandler.Healthz).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	planner := r.PathPrefix("/api/planner").Subrouter()
	planner.Use(requireAuth)
	planner.HandleFunc("/tasks/", plannerHandler.ListTasks).Methods("GET")
	planner.HandleFunc("/tasks/", plannerHandler.CreateTask).Methods("POST")
	planner.HandleFunc("/tasks/{id}/", plannerHandler.GetTask).Methods("GET")
	planner.HandleFunc("/tasks/{id}/", plannerHandler.UpdateTask).Methods("PUT", "PATCH")
	planner.HandleFunc("/tasks/{id}/", plannerHandler.DeleteTask).Methods("DELETE")

	// Every AI route shares one per-client budget. Mood saves are open to
	// anonymous callers.
	aiRoutes := r.PathPrefix("/api/ai").Subrouter()
	aiRoutes.Use(middleware.RateLimit(cfg.AIRateLimit))
	aiRoutes.Handle("/mood/save/", middleware.OptionalAuth(signer)(http.HandlerFunc(aiHandler.SaveMood))).Methods("POST")
	aiRoutes.Handle("/mood/save/", protect(aiHandler.RecentMoods)).Methods("GET")
	aiRoutes.Handle("/ai/plan/", protect(aiHandler.Chat)).Methods("POST")
	aiRoutes.Handle("/study-tools/", protect(aiHandler.StudyTools)).Methods("POST")

	r.Handle("/library/", protect(libraryHandler.List)).Methods("GET")
	r.Handle("/upload-document", protect(libraryHandler.UploadDocument)).Methods("POST")
	r.Handle("/save-flashcard", protect(libraryHandler.SaveFlashcard)).Methods("POST")
	r.Handle("/save-video", protect(libraryHandler.SaveVideo)).Methods("POST")
	r.Handle("/resources/{id}/file", protect(libraryHandler.File)).Methods("GET")

	groups := r.PathPrefix("/peer-connect").Subrouter()
	groups.Use(requireAuth)
	groups.HandleFunc("/", groupHandler.ListGroups).Methods("GET")
	groups.HandleFunc("/peer_connect/", groupHandler.ListGroups).Methods("GET")
	groups.HandleFunc("/peer_connect/", groupHandler.CreateGroup).Methods("POST")
	groups.HandleFunc("/chat/{group_id}/", groupHandler.ChatRoom).Methods("GET")
	groups.HandleFunc("/chat/{group_id}/", groupHandler.SendMessage).Methods("POST")
	groups.HandleFunc("/send_message/{group_id}/", groupHandler.SendMessage).Methods("POST")
	groups.HandleFunc("/fetch_messages/{group_id}/", groupHandler.FetchMessages).Methods("GET")
	groups.HandleFunc("/join_group/{group_id}/", groupHandler.JoinGroup).Methods("POST")
	groups.HandleFunc("/leave_group/{group_id}/", groupHandler.LeaveGroup).Methods("POST")
	groups.HandleFunc("/delete_group/{group_id}/", groupHandler.DeleteGroup).Methods("POST", "DELETE")

	r.Handle("/ws/chat/{group_name}/", protect(groupHandler.ServeChat))

	return r
}
