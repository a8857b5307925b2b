package rest

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.tickets.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ticket)
}

func (s *Server) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.tickets.ListByCustomer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondOK(w, map[string]any{"tickets": tickets})
}
