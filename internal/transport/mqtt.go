package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/openblinds/blindctl/internal/logger"
	"github.com/openblinds/blindctl/internal/motor"
	"github.com/openblinds/blindctl/internal/protocol"
)

// MQTTConfig for the radio-link broker connection.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	CommandTopic   string
	ResponseTopic  string
	StatusTopic    string
	StatusInterval time.Duration
}

// MQTTLink bridges the command protocol over a broker: command pairs in,
// reply frames out, plus a periodic JSON status publication.
type MQTTLink struct {
	cfg    MQTTConfig
	proc   *protocol.Processor
	motor  *motor.Controller
	client mqtt.Client
	log    *zap.SugaredLogger
}

// NewMQTTLink creates the broker link.
func NewMQTTLink(cfg MQTTConfig, proc *protocol.Processor, m *motor.Controller) *MQTTLink {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("blindctl_%d", time.Now().Unix())
	}
	return &MQTTLink{
		cfg:   cfg,
		proc:  proc,
		motor: m,
		log:   logger.Sugar().With("component", "mqtt"),
	}
}

// Run connects and services the link until ctx is cancelled. paho owns
// reconnection; subscriptions are re-established from OnConnect.
func (l *MQTTLink) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(l.cfg.Broker).
		SetClientID(l.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(l.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.log.Warnw("broker connection lost", "error", err)
		})
	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
		opts.SetPassword(l.cfg.Password)
	}

	l.client = mqtt.NewClient(opts)
	if token := l.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to broker: %w", token.Error())
	}

	if l.cfg.StatusInterval > 0 {
		go l.statusLoop(ctx)
	}

	<-ctx.Done()
	l.client.Disconnect(250)
	return nil
}

// Connected reports broker connectivity for health checks.
func (l *MQTTLink) Connected() bool {
	return l.client != nil && l.client.IsConnected()
}

func (l *MQTTLink) onConnect(client mqtt.Client) {
	l.log.Infow("connected to broker", "broker", l.cfg.Broker)
	token := client.Subscribe(l.cfg.CommandTopic, 1, l.onCommand)
	if token.Wait() && token.Error() != nil {
		l.log.Errorw("failed to subscribe", "topic", l.cfg.CommandTopic, "error", token.Error())
	}
}

// onCommand accepts either a raw 2-byte payload or a 4-hex-digit string.
func (l *MQTTLink) onCommand(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()

	var c1, c2 byte
	switch len(payload) {
	case 2:
		c1, c2 = payload[0], payload[1]
	case 4:
		decoded, err := hex.DecodeString(string(payload))
		if err != nil || len(decoded) != 2 {
			l.log.Debugw("ignoring malformed command payload", "payload", string(payload))
			return
		}
		c1, c2 = decoded[0], decoded[1]
	default:
		l.log.Debugw("ignoring command payload of unexpected length", "len", len(payload))
		return
	}

	if reply := l.proc.Process(c1, c2); reply != nil {
		l.client.Publish(l.cfg.ResponseTopic, 1, false, reply)
	}
}

func (l *MQTTLink) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.publishStatus()
		}
	}
}

func (l *MQTTLink) publishStatus() {
	s := l.motor.Snapshot()
	payload, err := json.Marshal(map[string]interface{}{
		"status":      s.Status.String(),
		"direction":   s.Direction.String(),
		"position":    s.Position100,
		"location":    s.Location,
		"rpm":         s.RPM,
		"calibrating": s.Calibrating,
	})
	if err != nil {
		return
	}
	l.client.Publish(l.cfg.StatusTopic, 0, true, payload)
}
