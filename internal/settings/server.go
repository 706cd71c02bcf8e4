package settings

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/goverland-labs/teams-subscriptions/pkg/httpsrv"
)

type UserProvider interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Server struct {
	sp    *Service
	users UserProvider
}

func NewServer(s *Service, up UserProvider) *Server {
	return &Server{
		users: up,
		sp:    s,
	}
}

func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/v1/users/{id}/settings/delivery", s.GetDeliverySettings).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{id}/settings/delivery", s.StoreDeliverySettings).Methods(http.MethodPut)
}

func (s *Server) GetDeliverySettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.knownUser(w, r)
	if !ok {
		return
	}

	dsd, err := s.sp.GetDeliverySettings(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msgf("get delivery settings: %s", userID)
		httpsrv.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, dsd)
}

func (s *Server) StoreDeliverySettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.knownUser(w, r)
	if !ok {
		return
	}

	var req DeliverySettings
	if err := httpsrv.DecodeJSON(r, &req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dsd, err := s.sp.StoreDeliverySettings(r.Context(), userID, req)
	if err != nil {
		log.Error().Err(err).Msgf("store delivery settings: %s", userID)
		httpsrv.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, dsd)
}

func (s *Server) knownUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return uuid.UUID{}, false
	}

	exists, err := s.users.Exists(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msgf("check user: %s", userID)
		httpsrv.WriteError(w, http.StatusInternalServerError, "internal error")
		return uuid.UUID{}, false
	}
	if !exists {
		httpsrv.WriteError(w, http.StatusNotFound, "user not found")
		return uuid.UUID{}, false
	}

	return userID, true
}
