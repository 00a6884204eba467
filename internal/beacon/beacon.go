// Package beacon ties the sensors, the classifier and the BLE session into
// the free-running sample, classify, publish loop.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/presence-beacon/internal/ble"
	"github.com/sweeney/presence-beacon/internal/gpio"
	"github.com/sweeney/presence-beacon/internal/logic"
	"github.com/sweeney/presence-beacon/internal/metrics"
	"github.com/sweeney/presence-beacon/internal/mqtt"
	"github.com/sweeney/presence-beacon/internal/sampler"
	"github.com/sweeney/presence-beacon/internal/status"
	"github.com/sweeney/presence-beacon/internal/tof"
)

// DefaultPeriod is the wait between the end of one cycle and the start of the next.
const DefaultPeriod = 5 * time.Millisecond

// Config wires a Beacon. Stack, Distance1, Distance2, Motion and Log are
// required; everything else is optional.
type Config struct {
	Stack         ble.Stack
	Service       ble.Service
	Advertisement ble.Advertisement

	Distance1 tof.Sensor
	Distance2 tof.Sensor
	Motion    gpio.Reader

	// LED, if set, is toggled once per cycle.
	LED gpio.Line

	// Period defaults to DefaultPeriod.
	Period time.Duration

	Tracker *status.Tracker
	Metrics *metrics.Metrics
	Mirror  *mqtt.Mirror
	Log     logrus.FieldLogger

	// Now and After default to the time package. Tests inject fakes.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Beacon runs the main loop.
type Beacon struct {
	stack     ble.Stack
	session   *ble.Session
	sampler   *sampler.Sampler
	publisher *ble.Publisher
	rec       *recorder

	led   gpio.Line
	ledOn bool

	period  time.Duration
	tracker *status.Tracker
	metrics *metrics.Metrics
	mirror  *mqtt.Mirror
	log     logrus.FieldLogger
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time
}

// New builds a Beacon from cfg. Nothing touches hardware until Run.
func New(cfg Config) (*Beacon, error) {
	if cfg.Stack == nil || cfg.Distance1 == nil || cfg.Distance2 == nil || cfg.Motion == nil {
		return nil, errors.New("beacon: stack, distance sensors and motion reader are required")
	}
	if cfg.Log == nil {
		return nil, errors.New("beacon: logger is required")
	}
	if cfg.Service.Characteristics == nil {
		cfg.Service = ble.PresenceService()
	}
	if cfg.Advertisement.Name == "" {
		cfg.Advertisement = ble.DefaultAdvertisement(ble.DefaultName)
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.After == nil {
		cfg.After = time.After
	}

	rec := &recorder{tracker: cfg.Tracker, metrics: cfg.Metrics}
	b := &Beacon{
		stack:   cfg.Stack,
		session: ble.NewSession(cfg.Stack, cfg.Service, cfg.Advertisement, cfg.Log, rec),
		sampler: sampler.New(cfg.Distance1, cfg.Distance2, cfg.Motion, cfg.Log, rec),
		rec:     rec,
		led:     cfg.LED,
		period:  cfg.Period,
		tracker: cfg.Tracker,
		metrics: cfg.Metrics,
		mirror:  cfg.Mirror,
		log:     cfg.Log,
		now:     cfg.Now,
		after:   cfg.After,
	}
	return b, nil
}

// State returns the BLE session state.
func (b *Beacon) State() ble.SessionState {
	return b.session.State()
}

// Restarts returns how many times advertising was re-armed.
func (b *Beacon) Restarts() uint64 {
	return b.session.Restarts()
}

// Run brings the BLE session up and then cycles until ctx is done.
//
// If the session cannot be brought up the loop never starts and the error,
// wrapping ble.ErrInitFailed, is returned. Cancelling ctx during bring-up
// returns ctx.Err(). Once running, Run only returns nil on cancellation:
// nothing inside a cycle can stop the loop.
func (b *Beacon) Run(ctx context.Context) error {
	if err := b.session.Start(ctx); err != nil {
		return fmt.Errorf("start ble session: %w", err)
	}
	b.publisher = ble.NewPublisher(b.stack, b.session.Bindings(), b.log, b.rec)

	if b.mirror != nil {
		var payload []byte
		if b.tracker != nil {
			payload = status.FormatStatusEvent(b.tracker.Snapshot(), "STARTUP", "")
		}
		b.mirror.Startup(payload, b.now())
		go b.mirror.Run(ctx)
	}

	b.log.WithField("period", b.period).Info("beacon: sampling")
	for {
		if ctx.Err() != nil {
			break
		}
		b.Cycle()

		select {
		case <-ctx.Done():
		case <-b.after(b.period):
		}
	}

	b.log.WithField("cycles", b.cycles()).Info("beacon: stopped")
	return nil
}

// Cycle samples every input, classifies the readings and publishes the
// snapshot. Before Run has brought the session up nothing is published.
func (b *Beacon) Cycle() logic.Snapshot {
	start := b.now()

	readings := b.sampler.Sample()
	snap := logic.NewSnapshot(readings)
	if b.publisher != nil {
		b.publisher.Publish(snap)
	}
	b.toggleLED()

	if b.tracker != nil {
		b.tracker.Update(readings, snap, start)
	}
	b.metrics.CycleCompleted(b.now().Sub(start), snap)
	if b.mirror != nil {
		b.mirror.Observe(snap, start)
	}
	return snap
}

func (b *Beacon) toggleLED() {
	if b.led == nil {
		return
	}
	b.ledOn = !b.ledOn
	if err := b.led.Set(b.ledOn); err != nil {
		b.log.WithError(err).Debug("beacon: led toggle failed")
	}
}

func (b *Beacon) cycles() uint64 {
	if b.tracker == nil {
		return 0
	}
	return b.tracker.Snapshot().Cycles
}
