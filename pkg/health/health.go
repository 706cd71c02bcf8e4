package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/goverland-labs/teams-subscriptions/pkg/httpsrv"
)

const checkTimeout = 2 * time.Second

type Pinger interface {
	PingContext(ctx context.Context) error
}

func NewHealthCheckServer(listen, path string, handler http.Handler) *http.Server {
	r := mux.NewRouter()
	r.Handle(path, handler).Methods(http.MethodGet)

	return httpsrv.NewServer(listen, r)
}

// DefaultHandler reports 503 until every pinger answers.
func DefaultHandler(pingers ...Pinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		for _, p := range pingers {
			if err := p.PingContext(ctx); err != nil {
				httpsrv.WriteError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}

		httpsrv.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
