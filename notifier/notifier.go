package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"peopleops/webhook-outbox-relay/config"
	"peopleops/webhook-outbox-relay/log"
	"peopleops/webhook-outbox-relay/outbox"

	"github.com/sirupsen/logrus"
)

const (
	headerContentType   = "Content-Type"
	headerSignature     = "X-Signature-SHA256"
	headerCorrelationId = "X-Correlation-Id"

	contentTypeJson = "application/json"
)

// Notifier delivers one parsed envelope to the destination named by the
// entry. Implementations must not retry internally; attempt counting is
// owned by the dispatch loop.
type Notifier interface {
	Dispatch(ctx context.Context, e *outbox.Entry, env *outbox.Envelope) error
}

type destinationResolver interface {
	Destination(name string) (config.Destination, bool)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type webhookNotifier struct {
	client   httpDoer
	resolver destinationResolver
}

func New(cfg *config.Config) Notifier {
	return NewWithClient(cfg, &http.Client{Timeout: cfg.GetDispatchTimeout()})
}

func NewWithClient(resolver destinationResolver, client httpDoer) Notifier {
	return &webhookNotifier{
		client:   client,
		resolver: resolver,
	}
}

func (n webhookNotifier) Dispatch(ctx context.Context, e *outbox.Entry, env *outbox.Envelope) error {
	dest, ok := n.resolver.Destination(e.Destination)
	if !ok {
		return fmt.Errorf("notifier: no destination configured with the name %q", e.Destination)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(env.Body))
	if err != nil {
		return fmt.Errorf("notifier: error building request for destination %q: %w", e.Destination, err)
	}

	req.Header.Set(headerContentType, contentTypeJson)
	req.Header.Set(headerCorrelationId, e.Id.String())

	for k, v := range dest.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range env.Headers {
		req.Header.Set(k, v)
	}

	secret := env.Secret
	if secret == "" {
		secret = dest.Secret
	}
	if secret != "" {
		req.Header.Set(headerSignature, Sign(env.Body, secret))
	}

	res, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: error calling destination %q: %w", e.Destination, err)
	}
	defer n.drain(res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("notifier: destination %q answered with unexpected status %d", e.Destination, res.StatusCode)
	}

	log.Logger.WithFields(logrus.Fields{
		"entry_id":    e.Id.String(),
		"destination": e.Destination,
		"status":      res.StatusCode,
	}).Debug("delivered notification to destination")

	return nil
}

func (n webhookNotifier) drain(body io.ReadCloser) {
	_, _ = io.Copy(ioutil.Discard, body)
	_ = body.Close()
}
