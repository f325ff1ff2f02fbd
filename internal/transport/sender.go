package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coffersTech/logbuf/internal/metrics"
	"github.com/coffersTech/logbuf/internal/model"
)

// ErrBeaconRejected is returned when the fire-and-forget queue refuses a body.
var ErrBeaconRejected = errors.New("beacon rejected payload")

const (
	kindHTTP   = "http"
	kindBeacon = "beacon"
)

// Sender delivers payloads, using the beacon when one is configured and the
// destination prefers it, and a timed POST otherwise.
type Sender struct {
	client  *Client
	beacon  *Beacon
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSender returns a Sender. beacon may be nil, in which case every payload
// is POSTed. timeout <= 0 uses DefaultTimeout.
func NewSender(client *Client, beacon *Beacon, timeout time.Duration, logger zerolog.Logger) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sender{client: client, beacon: beacon, timeout: timeout, logger: logger}
}

// Send encodes payload and delivers it to url.
func (s *Sender) Send(ctx context.Context, url string, payload model.Payload, preferBeacon bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	kind := kindHTTP
	if s.beacon != nil && preferBeacon {
		kind = kindBeacon
		if !s.beacon.Send(url, body) {
			err = ErrBeaconRejected
		}
	} else {
		_, err = s.client.Post(ctx, url, body, s.timeout)
	}

	if err != nil {
		metrics.BatchFailed(kind)
		s.logger.Warn().Err(err).Str("url", url).Str("transport", kind).
			Int("records", len(payload.BizInfo)).Msg("report send failed")
		return err
	}
	metrics.BatchSent(kind)
	return nil
}
