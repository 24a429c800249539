package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/capsulevault/capsule-server/internal/api/http/handler"
	"github.com/capsulevault/capsule-server/internal/api/http/middleware"
	"github.com/capsulevault/capsule-server/internal/logger"
	"github.com/capsulevault/capsule-server/internal/model"
)

// Router wires handlers and middleware into the HTTP routing table.
type Router struct {
	accountService handler.AccountService
	capsuleService handler.CapsuleService
	lifecycle      handler.LifecycleScheduler
	tokenManager   model.TokenManager
	contextManager model.ContextManager
	logger         *logger.Logger
}

// New creates a new Router instance.
func New(
	accountService handler.AccountService,
	capsuleService handler.CapsuleService,
	lifecycle handler.LifecycleScheduler,
	tokenManager model.TokenManager,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Router {
	return &Router{
		accountService: accountService,
		capsuleService: capsuleService,
		lifecycle:      lifecycle,
		tokenManager:   tokenManager,
		contextManager: contextManager,
		logger:         logger,
	}
}

// Register builds the routing table: /v1/auth is public, everything under
// /v1/capsules requires a bearer token.
func (r *Router) Register() http.Handler {
	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.tokenManager, r.contextManager, r.logger)

	authHandler := handler.NewAuth(r.accountService, r.tokenManager, r.logger)
	capsuleHandler := handler.NewCapsule(r.capsuleService, r.lifecycle, r.contextManager, r.logger)

	root := mux.NewRouter()
	root.Use(logging.Handle)

	root.HandleFunc("/v1/auth", authHandler.Authenticate).Methods(http.MethodPost)

	api := root.PathPrefix("/v1/capsules").Subrouter()
	api.Use(authenticate.Handle)
	api.HandleFunc("", capsuleHandler.List).Methods(http.MethodGet)
	api.HandleFunc("", capsuleHandler.Lock).Methods(http.MethodPost)
	api.HandleFunc("/watch", capsuleHandler.Watch).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}/open", capsuleHandler.Open).Methods(http.MethodPost)
	api.HandleFunc("/{id:[0-9]+}/image", capsuleHandler.Image).Methods(http.MethodGet)

	return root
}
