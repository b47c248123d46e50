package outbox

import (
	"errors"
	"testing"

	"github.com/go-test/deep"
)

func TestEnvelope_EncodeAndParseRoundTrip(t *testing.T) {
	env := NewEnvelope([]byte(`{"employeeId":"e-123","name":"Jo"}`), "s3cret", map[string]string{"x-tenant": "acme"})

	b, err := env.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	got, err := ParseEnvelope(b)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if diff := deep.Equal(&env, got); diff != nil {
		t.Error(diff)
	}
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{
			name:    "valid envelope",
			payload: `{"version":1,"body":{"employeeId":"e-123"}}`,
		},
		{
			name:    "malformed JSON",
			payload: `{not json`,
			wantErr: errors.New("any"),
		},
		{
			name:    "missing version",
			payload: `{"body":{"employeeId":"e-123"}}`,
			wantErr: ErrEnvelopeVersion,
		},
		{
			name:    "unknown version",
			payload: `{"version":9,"body":{"employeeId":"e-123"}}`,
			wantErr: ErrEnvelopeVersion,
		},
		{
			name:    "missing body",
			payload: `{"version":1}`,
			wantErr: ErrEnvelopeBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvelope([]byte(tt.payload))

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %s", err)
				}
				if got.Version != EnvelopeVersion {
					t.Errorf("unexpected version: %d", got.Version)
				}
				return
			}

			if err == nil {
				t.Fatal("expected an error")
			}

			if tt.wantErr != ErrEnvelopeVersion && tt.wantErr != ErrEnvelopeBody {
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
