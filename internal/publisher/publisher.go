// Package publisher delivers translation events to broadcast topics.
package publisher

import (
	"context"
	"errors"
)

// Quality tiers understood by every sink.
const (
	AtMostOnce  byte = 0
	AtLeastOnce byte = 1
)

type Options struct {
	QoS    byte
	Retain bool
}

// Publisher sends payload to topic. Returned errors wrap models.ErrDelivery.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, opts Options) error
}

// Fanout delivers to every sink in order; one sink failing does not stop the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, payload []byte, opts Options) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, topic, payload, opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
