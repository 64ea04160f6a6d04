package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/models"
	"container_telemetry/internal/observability/metrics"
	"container_telemetry/internal/telemetry"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	linkKey       = "link:mqtt"
	linkName      = "mqtt"
	ingestTimeout = 5 * time.Second
)

// Ingester is satisfied by service.Telemetry.
type Ingester interface {
	Ingest(ctx context.Context, line string) (telemetry.IngestResult, error)
}

// ConditionReporter is satisfied by service.Telemetry.
type ConditionReporter interface {
	ReportCondition(category models.Category, key, condition, message string, severity models.Severity) bool
}

// SessionResetter is satisfied by service.Telemetry.
type SessionResetter interface {
	Reset(ctx context.Context) error
}

type subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// SourceConfig selects the frame topic, e.g. "container/+/frames".
type SourceConfig struct {
	Topic string
	QoS   byte
}

// LineSource feeds frames published on the broker into the ingestion
// pipeline. One payload may carry several newline-separated frames. A lost
// broker connection ends the monitoring session.
type LineSource struct {
	cfg      SourceConfig
	ingest   Ingester
	reporter ConditionReporter
	resetter SessionResetter
	log      *logger.Logger

	mu   sync.Mutex
	lost bool
}

func NewLineSource(cfg SourceConfig, ingest Ingester, reporter ConditionReporter, resetter SessionResetter, log *logger.Logger) *LineSource {
	return &LineSource{
		cfg:      cfg,
		ingest:   ingest,
		reporter: reporter,
		resetter: resetter,
		log:      logger.OrNop(log).Named("mqtt_source"),
	}
}

// OnConnect (re)subscribes; clean sessions drop subscriptions on reconnect.
func (s *LineSource) OnConnect(c mqtt.Client) {
	if err := s.subscribe(c); err != nil {
		s.log.Errorw("mqtt_subscribe_failed", "topic", s.cfg.Topic, "err", err)
		return
	}
	metrics.SetLinkUp(linkName, true)

	s.mu.Lock()
	wasLost := s.lost
	s.lost = false
	s.mu.Unlock()
	if wasLost {
		s.reporter.ReportCondition(models.CategoryLink, linkKey, "connected",
			"Broker connection restored", models.SeveritySuccess)
	}
}

func (s *LineSource) OnConnectionLost(err error) {
	metrics.SetLinkUp(linkName, false)
	s.mu.Lock()
	wasLost := s.lost
	s.lost = true
	s.mu.Unlock()
	if !wasLost {
		s.endSession()
	}
	s.reporter.ReportCondition(models.CategoryLink, linkKey, "lost",
		fmt.Sprintf("Broker connection lost: %v", err), models.SeverityWarning)
}

func (s *LineSource) endSession() {
	if s.resetter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.resetter.Reset(ctx); err != nil {
		s.log.Errorw("session_reset_failed", "err", err)
	}
}

func (s *LineSource) subscribe(c subscriber) error {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	s.log.Infow("mqtt_subscribed", "topic", s.cfg.Topic, "qos", s.cfg.QoS)
	return nil
}

func (s *LineSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	device := extractDeviceID(msg.Topic())
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	for _, line := range splitFrames(msg.Payload()) {
		res, err := s.ingest.Ingest(ctx, line)
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				s.log.Debugw("mqtt_frame_rejected", "device", device, "err", err)
			}
			continue
		}
		if len(res.Diagnostics) > 0 {
			s.log.Debugw("mqtt_frame_diagnostics", "device", device, "count", len(res.Diagnostics))
		}
	}
}

// splitFrames drops blank lines and trailing CRs.
func splitFrames(payload []byte) []string {
	raw := strings.Split(string(payload), "\n")
	out := raw[:0]
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// extractDeviceID extracts device ID from MQTT topic
// Example: "container/c-017/frames" -> "c-017"
func extractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 {
		return parts[1]
	}
	return ""
}
