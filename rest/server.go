package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/engine"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/metadata"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/signal"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port            int
	metadataService metadata.MetadataService
	engine          *engine.Engine
	bus             *signal.Bus
	tickets         persistence.TicketStore
}

func NewServer(httpPort int, metadataService metadata.MetadataService, e *engine.Engine, bus *signal.Bus, tickets persistence.TicketStore) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		metadataService: metadataService,
		engine:          e,
		bus:             bus,
		tickets:         tickets,
		Port:            httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/plans", s.HandleListPlans).Methods(http.MethodGet)
	router.HandleFunc("/plans/{name}", s.HandleRegisterPlan).Methods(http.MethodPost)
	router.HandleFunc("/plans/{name}/validate", s.HandleValidatePlan).Methods(http.MethodPost)
	router.HandleFunc("/plans/{name}", s.HandleGetLatestPlan).Methods(http.MethodGet)
	router.HandleFunc("/plans/{name}/versions", s.HandleGetPlanVersions).Methods(http.MethodGet)
	router.HandleFunc("/plans/{name}/summaries", s.HandleGetPlanSummaries).Methods(http.MethodGet)
	router.HandleFunc("/plans/{name}/{version:[0-9]+}", s.HandleGetPlan).Methods(http.MethodGet)
	router.HandleFunc("/plans/{name}/{version:[0-9]+}/deactivate", s.HandleDeactivatePlan).Methods(http.MethodPost)

	router.HandleFunc("/plans/{name}/messages", s.HandleTrigger).Methods(http.MethodPost)
	router.HandleFunc("/messages", s.HandleTrigger).Methods(http.MethodPost)

	router.HandleFunc("/instances/{id}", s.HandleGetInstance).Methods(http.MethodGet)
	router.HandleFunc("/instances/{id}/signals/{signal}", s.HandleSignal).Methods(http.MethodPost)
	router.HandleFunc("/instances/{id}/resume", s.HandleResume).Methods(http.MethodPost)

	router.HandleFunc("/tickets/{id}", s.HandleGetTicket).Methods(http.MethodGet)
	router.HandleFunc("/customers/{id}/tickets", s.HandleListTickets).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI, zap.String("method", r.Method))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithErr picks the status code from the error kind.
func respondWithErr(w http.ResponseWriter, err error) {
	var compileErr *compiler.CompileError
	switch {
	case errors.As(err, &compileErr):
		respondWithJSON(w, http.StatusBadRequest, map[string]string{
			"error":  compileErr.Message,
			"code":   string(compileErr.Code),
			"nodeId": compileErr.NodeId,
		})
	case errors.Is(err, persistence.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrMissingBusinessKey):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, signal.ErrBusStopped):
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
