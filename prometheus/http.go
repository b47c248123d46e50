package prometheus

import (
	"fmt"
	"net/http"

	"peopleops/webhook-outbox-relay/config"
	h "peopleops/webhook-outbox-relay/http"
	"peopleops/webhook-outbox-relay/log"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func StartHttpServer(cfg *config.Config, db h.Pinger) {
	http.Handle("/metrics", promhttp.Handler())
	http.Handle("/healthz", h.NewHealthzHandler(cfg.DestinationHosts(), db))

	err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), nil)
	if err != nil {
		log.Logger.Fatalf("failed to start prometheus HTTP server: %s", err)
	}
}
