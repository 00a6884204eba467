package ble

import (
	"github.com/sirupsen/logrus"

	"github.com/sweeney/presence-beacon/internal/logic"
)

// PublishRecorder is told about characteristic updates the stack rejected.
type PublishRecorder interface {
	PublishFailed(ch logic.Channel)
}

// Publisher writes snapshots into the bound characteristics.
type Publisher struct {
	stack    Updater
	bindings Bindings
	log      logrus.FieldLogger
	rec      PublishRecorder
}

// NewPublisher creates a publisher for fixed bindings. rec may be nil.
func NewPublisher(stack Updater, bindings Bindings, log logrus.FieldLogger, rec PublishRecorder) *Publisher {
	return &Publisher{
		stack:    stack,
		bindings: bindings,
		log:      log,
		rec:      rec,
	}
}

// Publish writes one byte (1 present, 0 absent) per channel. Failures are
// dropped; the next cycle writes the current value again.
func (p *Publisher) Publish(snap logic.Snapshot) {
	for _, ch := range logic.Channels {
		b := p.bindings[ch]
		if err := p.stack.UpdateValue(b.Handle, []byte{logic.Encode(snap[ch])}); err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"channel": ch.String(),
				"uuid":    b.UUID.String(),
			}).Debug("ble: characteristic update dropped")
			if p.rec != nil {
				p.rec.PublishFailed(ch)
			}
		}
	}
}
