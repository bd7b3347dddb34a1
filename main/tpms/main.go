package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jd3nn1s/tpms"
	"github.com/jd3nn1s/tpms/config"
	"github.com/jd3nn1s/tpms/forwarder"
	"github.com/jd3nn1s/tpms/frame"
	"github.com/jd3nn1s/tpms/httpapi"
	"github.com/jd3nn1s/tpms/metrics"
	"github.com/jd3nn1s/tpms/transport"
	log "github.com/sirupsen/logrus"
)

var configFile = flag.String("config", "", "TOML configuration file")
var testMode = flag.Bool("testmode", false, "generate test data instead of reading the receiver")
var printSensors = flag.Bool("print-sensors", false, "print sensor updates to stdout")
var logLevel = flag.String("log-level", "", "override the configured log level")
var udpConfig = flag.String("udp-config", "", "standalone UDP forwarder TOML file, relative to the binary unless absolute")

type printForwarder struct{}

func (printForwarder) Name() string {
	return "stdout"
}

func (printForwarder) Forward(cur *tpms.SensorRecord, _ *tpms.SensorRecord) error {
	_, err := fmt.Printf("%3d %s %3d PSI %3d F %s\n",
		cur.ID, cur.Position.ShortName(), cur.PressurePSI, cur.TemperatureF, cur.StatusDescription())
	return err
}

type starter interface {
	Start(ctx context.Context) error
}

func main() {
	log.SetLevel(log.InfoLevel)
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			log.Fatal("unable to load configuration: ", err)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := tpms.NewEngine(tpms.Thresholds{
		TargetPressure:              cfg.Thresholds.TargetPressure,
		TargetTemperature:           cfg.Thresholds.TargetTemperature,
		PressureDeviationPercent:    cfg.Thresholds.PressureDeviationPercent,
		TemperatureDeviationPercent: cfg.Thresholds.TemperatureDeviationPercent,
	})
	if err != nil {
		log.Fatal(err)
	}
	m := metrics.New()

	var source transport.Source
	if !*testMode {
		if source, err = transport.Open(cfg.Transport); err != nil {
			log.Fatal("unable to create byte source: ", err)
		}
	}
	monitor := tpms.NewMonitor(engine, source, tpms.Options{
		BufferCapacity: cfg.Decoder.BufferFrames * frame.Length,
		Metrics:        m,
		Callbacks: tpms.Callbacks{
			Connected: func(name string) {
				log.WithField("source", name).Info("receiver connected")
			},
			Disconnected: func(name string) {
				log.WithField("source", name).Info("receiver disconnected")
			},
		},
	})
	if *testMode {
		monitor.SetTestMode(transport.SimulatorOptions{
			Sensors:      cfg.Transport.Sensors,
			Interval:     cfg.Transport.Interval.Duration,
			Seed:         cfg.Transport.Seed,
			NoiseEvery:   16,
			CorruptEvery: 32,
		})
	}
	if *printSensors {
		monitor.AddForwarder(printForwarder{})
	}

	var starters []starter
	var closers []func() error
	if *udpConfig != "" || cfg.UDP.Enabled {
		var fwd *forwarder.UDPForwarder
		if *udpConfig != "" {
			fwd, err = forwarder.NewUDPForwarder(*udpConfig)
		} else {
			fwd, err = forwarder.NewUDPForwarderFromConfig(cfg.UDP)
		}
		if err != nil {
			log.Fatal("unable to load UDP forwarder: ", err)
		}
		monitor.AddForwarder(fwd)
		starters = append(starters, fwd)
		closers = append(closers, fwd.Close)
	}
	if cfg.MQTT.Enabled {
		fwd, err := forwarder.NewMQTTForwarder(cfg.MQTT)
		if err != nil {
			log.Fatal("unable to load MQTT forwarder: ", err)
		}
		monitor.AddForwarder(fwd)
		closers = append(closers, fwd.Close)
	}
	if cfg.Kafka.Enabled {
		fwd, err := forwarder.NewKafkaForwarder(cfg.Kafka)
		if err != nil {
			log.Fatal("unable to load Kafka forwarder: ", err)
		}
		monitor.AddForwarder(fwd)
		starters = append(starters, fwd)
		closers = append(closers, fwd.Close)
	}
	if cfg.CAN.Enabled {
		fwd := tpms.NewCANForwarder(cfg.CAN.Interface)
		monitor.AddForwarder(fwd)
		closers = append(closers, fwd.Close)
	}
	for _, s := range starters {
		go s.Start(ctx)
	}

	var srv *http.Server
	if cfg.HTTP.Enabled {
		api := httpapi.NewServer(engine, cfg.SignalTimeout.Duration, m.Handler())
		srv = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           api.Handler(log.StandardLogger().Writer()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.WithField("listen", cfg.HTTP.Listen).Info("http api listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http api failed: ", err)
				stop()
			}
		}()
	}

	err = monitor.Run(ctx)
	log.Info("shutting down: ", err)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http api shutdown: ", err)
		}
	}
	for _, c := range closers {
		if err := c(); err != nil {
			log.Warn("close: ", err)
		}
	}
}
