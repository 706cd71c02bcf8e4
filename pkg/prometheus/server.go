package prometheus

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goverland-labs/teams-subscriptions/pkg/httpsrv"
)

func NewServer(listen, path string) *http.Server {
	r := mux.NewRouter()
	r.Handle(path, promhttp.Handler()).Methods(http.MethodGet)

	return httpsrv.NewServer(listen, r)
}
