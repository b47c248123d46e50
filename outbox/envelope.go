package outbox

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// EnvelopeVersion is the only payload schema understood by this relay.
// Older, unversioned rows must be migrated before deployment.
const EnvelopeVersion = 1

var (
	ErrEnvelopeVersion = errors.New("outbox: unsupported envelope version")
	ErrEnvelopeBody    = errors.New("outbox: envelope has no body")
)

// Envelope is the serialized unit stored in an entry's payload column: the
// notification body plus the delivery metadata the notifier needs.
type Envelope struct {
	Version int               `json:"version"`
	Body    json.RawMessage   `json:"body"`
	Secret  string            `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func NewEnvelope(body []byte, secret string, headers map[string]string) Envelope {
	return Envelope{
		Version: EnvelopeVersion,
		Body:    body,
		Secret:  secret,
		Headers: headers,
	}
}

func (e Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Errorf("outbox: error encoding envelope: %s", err)
	}
	return b, nil
}

// ParseEnvelope decodes an entry payload. A failure here is a permanent
// content error; callers must route it through the failure handler rather
// than retrying the same bytes forever.
func ParseEnvelope(payload []byte) (*Envelope, error) {
	e := &Envelope{}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, errors.Errorf("outbox: error decoding envelope: %s", err)
	}

	if e.Version != EnvelopeVersion {
		return nil, ErrEnvelopeVersion
	}

	if len(e.Body) == 0 {
		return nil, ErrEnvelopeBody
	}

	return e, nil
}
