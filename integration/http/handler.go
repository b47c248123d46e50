//go:build integration
// +build integration

package http

import (
	"io/ioutil"
	"net/http"
	"sync"
)

// WebhookRequest captures one delivery received by the test webhook server.
type WebhookRequest struct {
	Path          string
	Body          []byte
	Signature     string
	CorrelationId string
	Headers       http.Header
}

var (
	mu       sync.Mutex
	Recvd    map[string]bool
	webhooks map[string][]WebhookRequest
	failures map[string]int
)

func init() {
	Reset()
}

func GetHttpTestHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/quitquitquit":
			handleQuit(w, r)
			return
		default:
			handleWebhook(w, r)
			return
		}
	}
}

func Reset() {
	mu.Lock()
	defer mu.Unlock()
	Recvd = map[string]bool{}
	webhooks = map[string][]WebhookRequest{}
	failures = map[string]int{}
}

// FailNextRequests makes the next n deliveries to path receive a 503.
func FailNextRequests(path string, n int) {
	mu.Lock()
	defer mu.Unlock()
	failures[path] = n
}

func WebhookCount(path string) int {
	mu.Lock()
	defer mu.Unlock()
	return len(webhooks[path])
}

func LastWebhook(path string) (WebhookRequest, bool) {
	mu.Lock()
	defer mu.Unlock()

	reqs := webhooks[path]
	if len(reqs) == 0 {
		return WebhookRequest{}, false
	}
	return reqs[len(reqs)-1], true
}

func handleQuit(w http.ResponseWriter, r *http.Request) {
	mu.Lock()
	defer mu.Unlock()

	Recvd["/quitquitquit"] = true

	w.WriteHeader(200)
}

func handleWebhook(w http.ResponseWriter, r *http.Request) {
	mu.Lock()
	defer mu.Unlock()

	if failures[r.URL.Path] > 0 {
		failures[r.URL.Path]--
		w.WriteHeader(503)
		return
	}

	body, _ := ioutil.ReadAll(r.Body)
	webhooks[r.URL.Path] = append(webhooks[r.URL.Path], WebhookRequest{
		Path:          r.URL.Path,
		Body:          body,
		Signature:     r.Header.Get("X-Signature-SHA256"),
		CorrelationId: r.Header.Get("X-Correlation-Id"),
		Headers:       r.Header,
	})

	w.WriteHeader(204)
}
