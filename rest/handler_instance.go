package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/signal"
	"go.uber.org/zap"
)

type TriggerResponse struct {
	InstanceId string               `json:"instanceId"`
	Created    bool                 `json:"created"`
	Generation int                  `json:"generation"`
	Status     model.InstanceStatus `json:"status"`
	Failure    *model.Failure       `json:"failure,omitempty"`
}

// HandleTrigger runs an inbound message. Without a plan in the path the
// ticket workflow is used.
func (s *Server) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	planName, ok := mux.Vars(r)["name"]
	if !ok {
		planName = compiler.DEFAULT_PLAN_NAME
	}
	var msg model.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid message")
		return
	}
	defer r.Body.Close()
	// a client hanging up must not interrupt the run
	inst, created, err := s.engine.Trigger(context.WithoutCancel(r.Context()), planName, msg)
	if err != nil {
		logger.Error("error running message", zap.String("plan", planName), zap.String("sender", msg.Sender), zap.Error(err))
		respondWithErr(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	respondWithJSON(w, code, TriggerResponse{
		InstanceId: inst.Id,
		Created:    created,
		Generation: inst.Generation,
		Status:     inst.Status,
		Failure:    inst.Failure,
	})
}

func (s *Server) HandleGetInstance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	inst, err := s.engine.GetInstance(r.Context(), id)
	if err != nil {
		logger.Info("instance does not exist", zap.String("instanceId", id))
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, inst)
}

// HandleSignal accepts a signal for asynchronous delivery. The body, if any,
// becomes the signal payload.
func (s *Server) HandleSignal(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, name := vars["id"], vars["signal"]
	var payload any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid signal payload")
		return
	}
	defer r.Body.Close()
	err := s.bus.Deliver(r.Context(), signal.Delivery{InstanceId: id, Name: name, Payload: payload})
	if err != nil {
		logger.Error("error delivering signal", zap.String("instanceId", id), zap.String("signal", name), zap.Error(err))
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{"instanceId": id, "signal": name})
}

func (s *Server) HandleResume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Resume(r.Context(), id); err != nil {
		logger.Error("error resuming instance", zap.String("instanceId", id), zap.Error(err))
		respondWithErr(w, err)
		return
	}
	inst, err := s.engine.GetInstance(r.Context(), id)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, inst)
}
