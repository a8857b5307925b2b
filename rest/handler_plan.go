package rest

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"go.uber.org/zap"
)

// readGraph decodes the request body as YAML when the content type says so,
// JSON otherwise.
func readGraph(r *http.Request) (model.Graph, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return model.Graph{}, err
	}
	format := compiler.JSON_FORMAT
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = compiler.YAML_FORMAT
	}
	return compiler.DecodeGraph(data, format)
}

func (s *Server) HandleRegisterPlan(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	g, err := readGraph(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	plan, err := s.metadataService.Register(r.Context(), name, g)
	if err != nil {
		logger.Error("error registering plan", zap.String("name", name), zap.Error(err))
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, plan)
}

func (s *Server) HandleValidatePlan(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	g, err := readGraph(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	plan, err := s.metadataService.Validate(name, g)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plan)
}

func (s *Server) HandleGetLatestPlan(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	plan, err := s.metadataService.LatestActive(r.Context(), name)
	if err != nil {
		logger.Info("no active plan", zap.String("name", name))
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plan)
}

func (s *Server) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]
	version, err := strconv.Atoi(vars["version"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "version must be a number")
		return
	}
	plan, err := s.metadataService.Get(r.Context(), name, version)
	if err != nil {
		logger.Info("plan does not exist", zap.String("name", name), zap.Int("version", version))
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plan)
}

func (s *Server) HandleGetPlanVersions(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	versions, err := s.metadataService.Versions(r.Context(), name)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondOK(w, map[string]any{"name": name, "versions": versions})
}

func (s *Server) HandleGetPlanSummaries(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	summaries, err := s.metadataService.Summaries(r.Context(), name)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondOK(w, map[string]any{"summaries": summaries})
}

func (s *Server) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	names, err := s.metadataService.Names(r.Context())
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondOK(w, map[string]any{"names": names})
}

func (s *Server) HandleDeactivatePlan(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]
	version, err := strconv.Atoi(vars["version"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "version must be a number")
		return
	}
	if err := s.metadataService.Deactivate(r.Context(), name, version); err != nil {
		logger.Error("error deactivating plan", zap.String("name", name), zap.Int("version", version), zap.Error(err))
		respondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
