package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/resumax/internal/chat"
)

// Kind tags an Outcome.
type Kind int

const (
	KindText Kind = iota
	KindSafetyBlocked
	KindTransportError
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSafetyBlocked:
		return "safety_blocked"
	case KindTransportError:
		return "transport_error"
	case KindMalformed:
		return "malformed_response"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the classified result of one generation attempt. Only the fields
// relevant to Kind are set.
type Outcome struct {
	Kind Kind
	// Text is the model reply for KindText and the apology for KindSafetyBlocked.
	Text string
	// Reason is the provider block reason for KindSafetyBlocked.
	Reason string
	// Status and Body describe a KindTransportError. Status is 0 when no HTTP
	// response was received.
	Status int
	Body   string
	// Raw holds a short dump of a KindMalformed response.
	Raw string
}

// Final reports whether the outcome is an answer the user should see.
func (o Outcome) Final() bool {
	return o.Kind == KindText || o.Kind == KindSafetyBlocked
}

// Reply returns the text to show the user for final outcomes.
func (o Outcome) Reply() string {
	if !o.Final() {
		return ""
	}
	return o.Text
}

// Err describes a non-final outcome as an error.
func (o Outcome) Err() error {
	switch o.Kind {
	case KindTransportError:
		if o.Status == 0 {
			return fmt.Errorf("%w: %s", ErrTransport, o.Body)
		}
		return fmt.Errorf("%w: status %d: %s", ErrTransport, o.Status, o.Body)
	case KindMalformed:
		return fmt.Errorf("%w: %s", ErrMalformed, o.Raw)
	default:
		return nil
	}
}

var (
	ErrTransport = errors.New("generation api transport error")
	ErrMalformed = errors.New("generation api returned no text")
)

// Request is one chat turn to send to a model.
type Request struct {
	Message           string
	History           []chat.Turn
	SystemInstruction string
}

// Generator produces a final Outcome or an error once its retries are spent.
type Generator interface {
	Generate(ctx context.Context, req Request) (Outcome, error)
	Model() string
}
