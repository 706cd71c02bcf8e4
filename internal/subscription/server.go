package subscription

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/goverland-labs/teams-subscriptions/pkg/httpsrv"
)

const (
	defaultLimit  = 50
	defaultOffset = 0
)

type subscriptionRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	EventKind  string `json:"event_kind" validate:"required,oneof=TEST_EXECUTION_FAIL TEST_RUN_CREATED"`
	TargetKind string `json:"target_kind" validate:"required,oneof=testcase testsuite"`
	TargetID   string `json:"target_id" validate:"required,uuid"`
}

type statusRequest struct {
	UserID     string `validate:"required,uuid"`
	TargetKind string `validate:"required,oneof=testcase testsuite"`
	TargetID   string `validate:"required,uuid"`
}

type subscribersRequest struct {
	EventKind  string `validate:"required,oneof=TEST_EXECUTION_FAIL TEST_RUN_CREATED"`
	TargetKind string `validate:"required,oneof=testcase testsuite"`
	TargetID   string `validate:"required,uuid"`
}

type listRequest struct {
	EventKind  string `validate:"omitempty,oneof=TEST_EXECUTION_FAIL TEST_RUN_CREATED"`
	TargetKind string `validate:"required_with=TargetID,omitempty,oneof=testcase testsuite"`
	TargetID   string `validate:"required_with=TargetKind,omitempty,uuid"`
	Active     string `validate:"omitempty,boolean"`
}

type SubscriptionInfo struct {
	SubscriptionID string    `json:"subscription_id"`
	SubscriberID   string    `json:"subscriber_id"`
	EventKind      string    `json:"event_kind"`
	TargetKind     string    `json:"target_kind"`
	TargetID       string    `json:"target_id"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

type ListSubscriptionResponse struct {
	Items      []SubscriptionInfo `json:"items"`
	TotalCount int64              `json:"total_count"`
}

// Server exposes the subscription API to the web tier.
type Server struct {
	sp       *Service
	validate *validator.Validate
}

func NewServer(s *Service) *Server {
	return &Server{
		sp:       s,
		validate: validator.New(),
	}
}

func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/v1/subscriptions", s.Subscribe).Methods(http.MethodPost)
	r.HandleFunc("/v1/subscriptions", s.Unsubscribe).Methods(http.MethodDelete)
	r.HandleFunc("/v1/subscriptions/status", s.IsSubscribed).Methods(http.MethodGet)
	r.HandleFunc("/v1/subscribers", s.ActiveSubscribers).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{id}/subscriptions", s.ListSubscriptions).Methods(http.MethodGet)
}

func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}

	sub, err := s.sp.Subscribe(r.Context(), uuid.MustParse(req.UserID), EventKind(req.EventKind), Target{
		Kind: TargetKind(req.TargetKind),
		ID:   uuid.MustParse(req.TargetID),
	})
	if err != nil {
		log.Error().Err(err).Msgf("subscribe: %s %s", req.TargetKind, req.TargetID)
		writeError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, convertSubscription(sub))
}

func (s *Server) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}

	err := s.sp.Unsubscribe(r.Context(), uuid.MustParse(req.UserID), EventKind(req.EventKind), Target{
		Kind: TargetKind(req.TargetKind),
		ID:   uuid.MustParse(req.TargetID),
	})
	if err != nil {
		log.Error().Err(err).Msgf("unsubscribe: %s %s", req.TargetKind, req.TargetID)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) IsSubscribed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := statusRequest{
		UserID:     q.Get("user_id"),
		TargetKind: q.Get("target_kind"),
		TargetID:   q.Get("target_id"),
	}
	if err := s.validate.Struct(req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	subscribed, err := s.sp.IsSubscribed(r.Context(), uuid.MustParse(req.UserID), Target{
		Kind: TargetKind(req.TargetKind),
		ID:   uuid.MustParse(req.TargetID),
	})
	if err != nil {
		log.Error().Err(err).Msgf("is subscribed: %+v", req)
		writeError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, map[string]bool{"subscribed": subscribed})
}

func (s *Server) ActiveSubscribers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := subscribersRequest{
		EventKind:  q.Get("event_kind"),
		TargetKind: q.Get("target_kind"),
		TargetID:   q.Get("target_id"),
	}
	if err := s.validate.Struct(req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := s.sp.ActiveSubscribers(r.Context(), EventKind(req.EventKind), Target{
		Kind: TargetKind(req.TargetKind),
		ID:   uuid.MustParse(req.TargetID),
	})
	if err != nil {
		log.Error().Err(err).Msgf("active subscribers: %+v", req)
		writeError(w, err)
		return
	}

	res := make([]string, len(users))
	for i, id := range users {
		res[i] = id.String()
	}

	httpsrv.WriteJSON(w, http.StatusOK, map[string][]string{"users": res})
}

func (s *Server) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid subscriber id")
		return
	}

	q := r.URL.Query()
	req := listRequest{
		EventKind:  q.Get("event_kind"),
		TargetKind: q.Get("target_kind"),
		TargetID:   q.Get("target_id"),
		Active:     q.Get("active"),
	}
	if err := s.validate.Struct(req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := defaultLimit, defaultOffset
	if val, err := strconv.Atoi(q.Get("limit")); err == nil && val > 0 {
		limit = val
	}
	if val, err := strconv.Atoi(q.Get("offset")); err == nil && val > 0 {
		offset = val
	}

	filters := []Filter{
		PageFilter{Limit: limit, Offset: offset},
		UserIDFilter{ID: userID.String()},
	}
	if req.EventKind != "" {
		filters = append(filters, EventKindFilter{Kind: EventKind(req.EventKind)})
	}
	if req.TargetKind != "" {
		filters = append(filters, TargetFilter{Target: Target{
			Kind: TargetKind(req.TargetKind),
			ID:   uuid.MustParse(req.TargetID),
		}})
	}
	if active, err := strconv.ParseBool(req.Active); err == nil {
		filters = append(filters, ActiveFilter{Active: active})
	}

	list, err := s.sp.GetByFilters(r.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msgf("get user subscriptions: %s", userID)
		writeError(w, err)
		return
	}

	res := ListSubscriptionResponse{
		Items:      make([]SubscriptionInfo, len(list.Subscriptions)),
		TotalCount: list.TotalCount,
	}
	for i := range list.Subscriptions {
		res.Items[i] = convertSubscription(&list.Subscriptions[i])
	}

	httpsrv.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) decodeSubscription(w http.ResponseWriter, r *http.Request) (subscriptionRequest, bool) {
	var req subscriptionRequest
	if err := httpsrv.DecodeJSON(r, &req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}

	if err := s.validate.Struct(req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, err.Error())
		return req, false
	}

	return req, true
}

func writeError(w http.ResponseWriter, err error) {
	var (
		nf *NotFoundError
		ia *InvalidArgumentError
	)

	switch {
	case errors.As(err, &nf):
		httpsrv.WriteError(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &ia):
		httpsrv.WriteError(w, http.StatusBadRequest, ia.Error())
	default:
		httpsrv.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func convertSubscription(sub *Subscription) SubscriptionInfo {
	return SubscriptionInfo{
		SubscriptionID: sub.ID.String(),
		SubscriberID:   sub.UserID.String(),
		EventKind:      string(sub.EventKind),
		TargetKind:     string(sub.TargetKind),
		TargetID:       sub.TargetID.String(),
		Active:         sub.Active,
		CreatedAt:      sub.CreatedAt,
	}
}
