package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openblinds/blindctl/internal/api"
	"github.com/openblinds/blindctl/internal/config"
	"github.com/openblinds/blindctl/internal/hal"
	"github.com/openblinds/blindctl/internal/health"
	"github.com/openblinds/blindctl/internal/logger"
	"github.com/openblinds/blindctl/internal/metrics"
	"github.com/openblinds/blindctl/internal/motor"
	"github.com/openblinds/blindctl/internal/power"
	"github.com/openblinds/blindctl/internal/protocol"
	"github.com/openblinds/blindctl/internal/scheduler"
	"github.com/openblinds/blindctl/internal/settings"
	"github.com/openblinds/blindctl/internal/transport"
	"github.com/openblinds/blindctl/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config: " + err.Error())
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logger.Level
	logCfg.Format = cfg.Logger.Format
	logCfg.LogDir = cfg.Logger.Dir
	if err := logger.Init(logCfg); err != nil {
		logger.Fatal("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Sugar()
	log.Infow("blindctl starting", "version", api.Version)

	// Hardware Abstraction Layer (platform-specific, see hal_init_*.go)
	initHAL(cfg)
	h, err := hal.GetGlobalHAL()
	if err != nil {
		log.Fatalw("HAL unavailable", "error", err)
	}
	defer h.Close()

	// Settings store (flash-EEPROM analog)
	store, err := settings.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalw("failed to open settings store", "error", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Battery / supply voltage monitor
	pw := power.NewMonitor(h.ADC(), power.Config{
		Channel:        cfg.ADC.Channel,
		Divider:        cfg.ADC.Divider,
		SampleInterval: time.Duration(cfg.ADC.SampleInterval) * time.Second,
	})
	go pw.Run(ctx)

	// Motion core
	ctrl, err := motor.NewController(h.GPIO(), motor.Config{
		Hall1Pin:         cfg.Pins.Hall1,
		Hall2Pin:         cfg.Pins.Hall2,
		Bridge:           motor.BridgePins{Low1: cfg.Pins.Low1, Low2: cfg.Pins.Low2, High1: cfg.Pins.High1, High2: cfg.Pins.High2},
		PWMFrequency:     cfg.Motor.PWMFrequency,
		SlowdownFactor:   cfg.Motor.SlowdownFactor,
		MinSlowdownSpeed: cfg.Motor.MinSlowdownSpeed,
	}, store, pw)
	if err != nil {
		log.Fatalw("failed to create motor controller", "error", err)
	}
	if err := ctrl.Init(); err != nil {
		log.Fatalw("failed to init motor controller", "error", err)
	}
	store.SetWriteGate(ctrl.IsStopped)
	go ctrl.Run(ctx)

	// Command processor shared by every link
	proc := protocol.NewProcessor(ctrl, pw)

	// UART command link
	if cfg.Serial.Enabled {
		serialLink := transport.NewSerialLink(transport.SerialConfig{
			Port: cfg.Serial.Port,
			Baud: cfg.Serial.Baud,
		}, proc)
		go serialLink.Run(ctx)
	}

	// MQTT radio-link analog
	var mqttLink *transport.MQTTLink
	if cfg.MQTT.Enabled {
		mqttLink = transport.NewMQTTLink(transport.MQTTConfig{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			CommandTopic:   cfg.MQTT.CommandTopic,
			ResponseTopic:  cfg.MQTT.ResponseTopic,
			StatusTopic:    cfg.MQTT.StatusTopic,
			StatusInterval: time.Duration(cfg.MQTT.StatusInterval) * time.Second,
		}, proc, ctrl)
		go func() {
			if err := mqttLink.Run(ctx); err != nil {
				log.Errorw("mqtt link failed", "error", err)
			}
		}()
	}

	// Scheduled re-calibration
	if cfg.Motor.CalibrationSchedule != "" {
		sched := scheduler.New(ctrl)
		if err := sched.AddCalibration(cfg.Motor.CalibrationSchedule); err != nil {
			log.Errorw("calibration schedule rejected", "error", err)
		} else {
			sched.Start()
			defer sched.Stop()
		}
	}

	// Health checks
	checker := health.NewHealthChecker()
	checker.RegisterCheck("motor", func(context.Context) (health.Status, string) {
		if ctrl.Status() == motor.StatusError {
			return health.StatusUnhealthy, "motor in error state, send stop to recover"
		}
		return health.StatusHealthy, ctrl.Status().String()
	})
	checker.RegisterCheck("power", func(context.Context) (health.Status, string) {
		if !pw.Available() {
			return health.StatusDegraded, "ADC not delivering samples"
		}
		return health.StatusHealthy, "ok"
	})
	if mqttLink != nil {
		checker.RegisterCheck("mqtt", func(context.Context) (health.Status, string) {
			if !mqttLink.Connected() {
				return health.StatusDegraded, "broker not connected"
			}
			return health.StatusHealthy, "connected"
		})
	}

	// HTTP API + WebSocket status stream
	if cfg.API.Enabled {
		server := api.NewServer(ctrl, proc, pw, websocket.NewHub(), checker, metrics.NewMetrics())
		go func() {
			if err := server.Run(ctx, cfg.API.Host, cfg.API.Port); err != nil {
				log.Errorw("api server failed", "error", err)
			}
		}()
	}

	// Block until shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Infow("shutting down")
	cancel()
	ctrl.Stop()
	time.Sleep(100 * time.Millisecond)
}
