package notification

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"go.openly.dev/pointy"
	"gorm.io/gorm"

	"github.com/goverland-labs/teams-subscriptions/pkg/httpsrv"
)

const (
	defaultLimit  = 50
	defaultOffset = 0
)

type NotificationInfo struct {
	ID         string     `json:"id"`
	EventKind  string     `json:"event_kind"`
	TargetKind string     `json:"target_kind"`
	TargetID   string     `json:"target_id"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Unread     bool       `json:"unread"`
	CreatedAt  time.Time  `json:"created_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

type ListResponse struct {
	Items      []NotificationInfo `json:"items"`
	TotalCount int64              `json:"total_count"`
}

type deleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

// Server is the in-app inbox API.
type Server struct {
	repo     *Repo
	validate *validator.Validate
}

func NewServer(r *Repo) *Server {
	return &Server{
		repo:     r,
		validate: validator.New(),
	}
}

func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/v1/users/{id}/notifications", s.List).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{id}/notifications/read-all", s.MarkAllRead).Methods(http.MethodPut)
	r.HandleFunc("/v1/users/{id}/notifications/delete", s.DeleteSelected).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{id}/notifications/{nid}/read", s.MarkRead).Methods(http.MethodPut)
	r.HandleFunc("/v1/users/{id}/notifications/{nid}", s.Delete).Methods(http.MethodDelete)
}

func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, offset := defaultLimit, defaultOffset
	if val, err := strconv.Atoi(q.Get("limit")); err == nil && val > 0 {
		limit = val
	}
	if val, err := strconv.Atoi(q.Get("offset")); err == nil && val > 0 {
		offset = val
	}

	var unread *bool
	if val, err := strconv.ParseBool(q.Get("unread")); err == nil {
		unread = pointy.Bool(val)
	}

	filters := []Filter{
		PageFilter{Limit: limit, Offset: offset},
		UserIDFilter{ID: userID.String()},
		UnreadFilter{Unread: unread},
	}
	if val := q.Get("since"); val != "" {
		since, err := time.Parse(time.RFC3339, val)
		if err != nil {
			httpsrv.WriteError(w, http.StatusBadRequest, "invalid since, expected RFC3339")
			return
		}
		filters = append(filters, CreatedAfterFilter{From: since.UTC()})
	}

	list, err := s.repo.GetByFilters(r.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msgf("list notifications: %s", userID)
		httpsrv.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	res := ListResponse{
		Items:      make([]NotificationInfo, len(list.Notifications)),
		TotalCount: list.TotalCount,
	}
	for i := range list.Notifications {
		res.Items[i] = convertNotification(&list.Notifications[i])
	}

	httpsrv.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "nid")
	if !ok {
		return
	}

	err := s.repo.MarkRead(r.Context(), userID, id, time.Now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		httpsrv.WriteError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msgf("mark notification read: %s", id)
		httpsrv.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	cnt, err := s.repo.MarkAllRead(r.Context(), userID, time.Now())
	if err != nil {
		log.Error().Err(err).Msgf("mark all notifications read: %s", userID)
		httpsrv.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, map[string]int64{"updated": cnt})
}

func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "nid")
	if !ok {
		return
	}

	cnt, err := s.repo.Delete(r.Context(), userID, id)
	if err != nil {
		log.Error().Err(err).Msgf("delete notification: %s", id)
		httpsrv.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if cnt == 0 {
		httpsrv.WriteError(w, http.StatusNotFound, "notification not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) DeleteSelected(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req deleteRequest
	if err := httpsrv.DecodeJSON(r, &req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids := make([]uuid.UUID, len(req.IDs))
	for i, raw := range req.IDs {
		ids[i] = uuid.MustParse(raw)
	}

	cnt, err := s.repo.Delete(r.Context(), userID, ids...)
	if err != nil {
		log.Error().Err(err).Msgf("delete notifications: %s", userID)
		httpsrv.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": cnt})
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid "+key)
		return uuid.UUID{}, false
	}

	return id, true
}

func convertNotification(n *Notification) NotificationInfo {
	return NotificationInfo{
		ID:         n.ID.String(),
		EventKind:  string(n.EventKind),
		TargetKind: string(n.TargetKind),
		TargetID:   n.TargetID.String(),
		Title:      n.Title,
		Body:       n.Body,
		Unread:     n.Unread(),
		CreatedAt:  n.CreatedAt,
		ReadAt:     n.ReadAt,
	}
}
