// Command presence-beacon samples two time-of-flight distance sensors and two
// PIR motion sensors and publishes per-channel presence as BLE characteristics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/presence-beacon/internal/beacon"
	"github.com/sweeney/presence-beacon/internal/ble"
	"github.com/sweeney/presence-beacon/internal/config"
	"github.com/sweeney/presence-beacon/internal/metrics"
	"github.com/sweeney/presence-beacon/internal/mqtt"
	"github.com/sweeney/presence-beacon/internal/status"
	"github.com/sweeney/presence-beacon/internal/web"
)

var version = "dev"

// mirrorQueue is how many presence changes may wait for the broker.
const mirrorQueue = 16

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "presence-beacon",
		Short: "BLE presence beacon",
		Long: `Samples two time-of-flight distance sensors and two PIR motion sensors,
classifies each channel as present or absent and publishes one byte per
channel on GATT service 0xAB00 (characteristics 0xAB01..0xAB04).`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runBeacon,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "YAML configuration file")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("i2c-bus", "", "I2C bus name (empty = first bus)")
	pf.String("gpio-chip", "", "GPIO chip name")

	f := root.Flags()
	f.String("name", "", "Advertised device name")
	f.Duration("period", 0, "Wait between cycles")
	f.String("backend", "", "BLE backend (bluez, hci)")
	f.String("adapter", "", "BlueZ adapter id (bluez backend)")
	f.Int("hci-device", 0, "HCI device index (hci backend)")
	f.String("http", "", "HTTP status address (empty to disable)")
	f.String("mqtt-broker", "", "MQTT broker for the presence mirror (empty to disable)")

	root.AddCommand(newStateCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// Ctrl+C is a normal exit.
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies the flags the operator set and validates.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("log-level", &cfg.LogLevel)
	str("i2c-bus", &cfg.I2CBus)
	str("gpio-chip", &cfg.GPIOChip)
	str("name", &cfg.DeviceName)
	str("backend", &cfg.Backend)
	str("adapter", &cfg.Adapter)
	str("http", &cfg.HTTPAddr)
	str("mqtt-broker", &cfg.MQTTBroker)

	if flags.Lookup("period") != nil && flags.Changed("period") {
		cfg.Period, _ = flags.GetDuration("period")
	}
	if flags.Lookup("hci-device") != nil && flags.Changed("hci-device") {
		cfg.HCIDevice, _ = flags.GetInt("hci-device")
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		DeviceName:    cfg.DeviceName,
		PeriodMs:      cfg.Period.Milliseconds(),
		AdvIntervalMs: cfg.AppliedAdvInterval().Milliseconds(),
		Backend:       cfg.Backend,
		Adapter:       adapterLabel(cfg),
		HTTPAddr:      cfg.HTTPAddr,
		Broker:        cfg.MQTTBroker,
		Topic:         cfg.MQTTTopic,
	}
}

func adapterLabel(cfg *config.Config) string {
	if cfg.Backend == config.BackendHCI {
		return fmt.Sprintf("hci%d", cfg.HCIDevice)
	}
	return cfg.Adapter
}

func newStack(cfg *config.Config, log logrus.FieldLogger) ble.Stack {
	if cfg.Backend == config.BackendHCI {
		return ble.NewHCIStack(cfg.HCIDevice, cfg.AdvertisingInterval, log)
	}
	return ble.NewBlueZStack(cfg.Adapter, log)
}

func runBeacon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()
	ctx := cmd.Context()

	hw, err := openHardware(cfg, logger)
	if err != nil {
		return err
	}
	defer hw.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	var mirror *mqtt.Mirror
	if cfg.MQTTBroker != "" {
		pub, err := mqtt.NewRealPublisher(cfg.MQTTBroker, cfg.MQTTTopic, "presence-beacon-"+cfg.DeviceName, logger, tracker.SetMQTTConnected)
		if err != nil {
			// The mirror is optional; BLE keeps working without it.
			logger.WithError(err).Warn("mqtt mirror disabled")
		} else {
			defer pub.Close()
			mirror = mqtt.NewMirror(pub, cfg.DeviceName, mirrorQueue, logger, m)
		}
	}

	if cfg.HTTPAddr != "" {
		accessLog := logger.WriterLevel(logrus.DebugLevel)
		defer accessLog.Close()
		srv := web.New(cfg.HTTPAddr, tracker, m, accessLog)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.WithField("addr", cfg.HTTPAddr).Info("http status server listening")
	}

	adv := ble.DefaultAdvertisement(cfg.DeviceName)
	adv.Interval = cfg.AdvertisingInterval

	b, err := beacon.New(beacon.Config{
		Stack:         newStack(cfg, logger),
		Service:       ble.PresenceService(),
		Advertisement: adv,
		Distance1:     hw.distance1,
		Distance2:     hw.distance2,
		Motion:        hw.motion,
		LED:           hw.led,
		Period:        cfg.Period,
		Tracker:       tracker,
		Metrics:       m,
		Mirror:        mirror,
		Log:           logger,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"name":    cfg.DeviceName,
		"backend": cfg.Backend,
		"adapter": adapterLabel(cfg),
		"period":  cfg.Period,
	}).Info("starting")

	return b.Run(ctx)
}
