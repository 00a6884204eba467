package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/presence-beacon/internal/beacon"
	"github.com/sweeney/presence-beacon/internal/ble"
	"github.com/sweeney/presence-beacon/internal/gpio"
	"github.com/sweeney/presence-beacon/internal/logic"
	"github.com/sweeney/presence-beacon/internal/metrics"
	"github.com/sweeney/presence-beacon/internal/mqtt"
	"github.com/sweeney/presence-beacon/internal/status"
	"github.com/sweeney/presence-beacon/internal/tof"
	"github.com/sweeney/presence-beacon/internal/web"
)

// system is the whole beacon wired to fakes, the way main wires it to hardware.
type system struct {
	stack    *ble.FakeStack
	d1, d2   *tof.FakeSensor
	motion   *gpio.FakeReader
	pub      *mqtt.FakePublisher
	tracker  *status.Tracker
	registry *prometheus.Registry
	http     *httptest.Server
	tick     chan time.Time
	beacon   *beacon.Beacon
}

func newSystem(t *testing.T, d1, d2 uint32, pir []gpio.Sample) *system {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := &system{
		stack:    ble.NewFakeStack(),
		d1:       tof.NewFakeSensor(d1),
		d2:       tof.NewFakeSensor(d2),
		motion:   gpio.NewFakeReader(pir),
		pub:      mqtt.NewFakePublisher(),
		registry: prometheus.NewRegistry(),
		tick:     make(chan time.Time),
	}
	s.tracker = status.NewTracker(time.Now(), status.Config{DeviceName: "OMG", PeriodMs: 5, Backend: "bluez", Adapter: "hci0"})
	m := metrics.NewMetrics(s.registry)

	s.http = httptest.NewServer(web.New(":0", s.tracker, m, nil).Handler())
	t.Cleanup(s.http.Close)

	// Units come up at their target addresses before the beacon starts.
	errs := tof.BringUp([]tof.Unit{
		{Name: "distance1", Sensor: s.d1, Shutdown: gpio.NewFakeLine(), Address: tof.DefaultAddress},
		{Name: "distance2", Sensor: s.d2, Shutdown: gpio.NewFakeLine(), Address: 0x30},
	}, func(time.Duration) {})
	for _, err := range errs {
		require.NoError(t, err)
	}

	b, err := beacon.New(beacon.Config{
		Stack:         s.stack,
		Service:       ble.PresenceService(),
		Advertisement: ble.DefaultAdvertisement("OMG"),
		Distance1:     s.d1,
		Distance2:     s.d2,
		Motion:        s.motion,
		LED:           gpio.NopLine{},
		Tracker:       s.tracker,
		Metrics:       m,
		Mirror:        mqtt.NewMirror(s.pub, "OMG", 8, logger, m),
		Log:           logger,
		After:         func(time.Duration) <-chan time.Time { return s.tick },
	})
	require.NoError(t, err)
	s.beacon = b
	return s
}

// run starts the beacon and returns a stop function yielding Run's result.
func (s *system) run(t *testing.T) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.beacon.Run(ctx) }()

	var result error
	var stopped bool
	stop := func() error {
		if !stopped {
			cancel()
			result = <-done
			stopped = true
		}
		return result
	}
	t.Cleanup(func() { stop() })
	return stop
}

func (s *system) waitCycles(t *testing.T, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return s.tracker.Snapshot().Cycles >= n }, time.Second, time.Millisecond)
}

// published reads the four characteristics in UUID order.
func (s *system) published(t *testing.T) [logic.NumChannels]byte {
	t.Helper()
	svc := s.stack.Services()
	require.Len(t, svc, 1)

	var out [logic.NumChannels]byte
	for i, c := range svc[0].Characteristics {
		require.Equal(t, ble.Distance1UUID+ble.UUID16(i), c.UUID)
		v := s.stack.Value(ble.Handle(i + 1))
		require.Len(t, v, 1, "%s payload is one byte", c.UUID)
		out[i] = v[0]
	}
	return out
}

func (s *system) statusJSON(t *testing.T) status.StatusInner {
	t.Helper()
	resp, err := http.Get(s.http.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(body, &sj))
	return sj.Status
}

func TestIntegrationScenarioA(t *testing.T) {
	s := newSystem(t, 250, 5, []gpio.Sample{{PIR1: true, PIR2: false}})
	stop := s.run(t)
	s.waitCycles(t, 1)

	assert.Equal(t, [logic.NumChannels]byte{1, 0, 1, 0}, s.published(t))

	st := s.statusJSON(t)
	assert.Equal(t, "ADVERTISING", st.Session)
	assert.True(t, st.Ready)
	require.Len(t, st.Channels, 4)
	assert.Equal(t, "distance1", st.Channels[0].Name)
	assert.Equal(t, uint32(250), st.Channels[0].Raw)
	assert.Equal(t, "PRESENT", st.Channels[0].Presence)
	assert.Equal(t, "0xAB02", st.Channels[1].UUID)
	assert.Equal(t, byte(0), st.Channels[1].Value)

	require.Eventually(t, func() bool { return len(s.pub.Payloads()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, stop())

	var p mqtt.Payload
	require.NoError(t, json.Unmarshal(s.pub.Payloads()[0], &p))
	assert.Equal(t, "OMG", p.Presence.Device)
	assert.Equal(t, [4]byte{1, 0, 1, 0}, [4]byte{p.Presence.Distance1, p.Presence.Distance2, p.Presence.Motion1, p.Presence.Motion2})

	expected := `
# HELP presence_beacon_presence Last published presence flag per channel (1 present, 0 absent).
# TYPE presence_beacon_presence gauge
presence_beacon_presence{channel="distance1"} 1
presence_beacon_presence{channel="distance2"} 0
presence_beacon_presence{channel="motion1"} 1
presence_beacon_presence{channel="motion2"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(s.registry, strings.NewReader(expected), "presence_beacon_presence"))
}

func TestIntegrationScenarioBBoundaries(t *testing.T) {
	s := newSystem(t, 10, 500, []gpio.Sample{{PIR1: false, PIR2: true}})
	stop := s.run(t)
	s.waitCycles(t, 1)
	require.NoError(t, stop())

	b := s.published(t)
	assert.Equal(t, byte(0), b[logic.Distance1], "10 mm is outside the window")
	assert.Equal(t, byte(0), b[logic.Distance2], "500 mm is outside the window")
	assert.Equal(t, byte(0), b[logic.Motion1])
	assert.Equal(t, byte(1), b[logic.Motion2])
}

func TestIntegrationScenarioCInitFailure(t *testing.T) {
	s := newSystem(t, 250, 5, []gpio.Sample{{PIR1: true}})
	s.stack.InitError = errors.New("controller not found")

	err := s.beacon.Run(context.Background())

	require.ErrorIs(t, err, ble.ErrInitFailed)
	assert.Empty(t, s.stack.Services(), "no service registered")
	assert.Zero(t, s.stack.AdvertiseCalls(), "no advertising")
	assert.Zero(t, s.d1.Calls(), "sampling never began")
	assert.Zero(t, s.motion.Reads)
	assert.Empty(t, s.pub.Presence())
	assert.Empty(t, s.pub.SystemEvents(), "no startup event without a session")

	st := s.statusJSON(t)
	assert.Equal(t, "UNINITIALIZED", st.Session)
	assert.False(t, st.Ready)
	assert.Zero(t, st.Cycles)
}

func TestIntegrationPresenceFollowsSensors(t *testing.T) {
	s := newSystem(t, 250, 5, []gpio.Sample{{PIR1: true}, {PIR1: true}, {PIR1: false}})
	s.d1.Values = []uint32{250, 600, 600}
	stop := s.run(t)
	s.waitCycles(t, 1)

	s.tick <- time.Now()
	s.waitCycles(t, 2)
	assert.Equal(t, [logic.NumChannels]byte{0, 0, 1, 0}, s.published(t))

	s.tick <- time.Now()
	s.waitCycles(t, 3)
	assert.Equal(t, [logic.NumChannels]byte{0, 0, 0, 0}, s.published(t))

	require.Eventually(t, func() bool { return len(s.pub.Presence()) == 3 }, time.Second, time.Millisecond)
	require.NoError(t, stop())

	events := s.pub.Presence()
	assert.Equal(t, []logic.Channel{logic.Distance1}, events[1].Changed)
	assert.Equal(t, []logic.Channel{logic.Motion1}, events[2].Changed)
}

func TestIntegrationReconnectKeepsPublishing(t *testing.T) {
	s := newSystem(t, 250, 5, []gpio.Sample{{PIR1: true}})
	stop := s.run(t)
	s.waitCycles(t, 1)

	for i := 0; i < 3; i++ {
		s.stack.Connect()
		assert.Equal(t, "CONNECTED", s.statusJSON(t).Session)
		s.stack.Disconnect()
		assert.Equal(t, "ADVERTISING", s.statusJSON(t).Session)
	}

	s.tick <- time.Now()
	s.waitCycles(t, 2)
	require.NoError(t, stop())

	assert.Equal(t, 4, s.stack.AdvertiseCalls(), "initial advertising plus one per disconnect")
	assert.Equal(t, uint64(3), s.statusJSON(t).Restarts)
	assert.Equal(t, [logic.NumChannels]byte{1, 0, 1, 0}, s.published(t))

	expected := `
# HELP presence_beacon_advertising_restarts_total Times advertising was re-armed after a peer disconnected.
# TYPE presence_beacon_advertising_restarts_total counter
presence_beacon_advertising_restarts_total 3
`
	assert.NoError(t, testutil.GatherAndCompare(s.registry, strings.NewReader(expected), "presence_beacon_advertising_restarts_total"))
}

func TestIntegrationSensorFaultReportedAbsent(t *testing.T) {
	s := newSystem(t, 250, 300, []gpio.Sample{{PIR1: true}})
	s.d1.Errors = []error{errors.New("i2c: nack")}
	stop := s.run(t)
	s.waitCycles(t, 1)
	require.NoError(t, stop())

	assert.Equal(t, [logic.NumChannels]byte{0, 1, 1, 0}, s.published(t))

	st := s.statusJSON(t)
	assert.True(t, st.Channels[0].Fault)
	assert.Equal(t, uint64(1), st.Channels[0].Faults)
	assert.Equal(t, "ABSENT", st.Channels[0].Presence)
}
