package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/webthing-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		TopicPrefix: "home",
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "webthing-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("home/")
	tests := []struct {
		got  string
		want string
	}{
		{topics.SystemStatus(), "home/system/status"},
		{topics.Property("lamp", "on"), "home/things/lamp/properties/on"},
		{topics.PropertySet("lamp", "on"), "home/things/lamp/properties/on/set"},
		{topics.Event("lamp", "overheated"), "home/things/lamp/events/overheated"},
		{topics.ActionStatus("lamp", "fade"), "home/things/lamp/actions/fade/status"},
		{topics.ActionRequest("lamp", "fade"), "home/things/lamp/actions/fade/request"},
		{topics.AllPropertySets(), "home/things/+/properties/+/set"},
		{topics.AllActionRequests(), "home/things/+/actions/+/request"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}

	if got := NewTopics("").SystemStatus(); got != "webthing/system/status" {
		t.Errorf("default prefix status topic = %q", got)
	}
}

func TestTopicsParse(t *testing.T) {
	topics := NewTopics("webthing")
	tests := []struct {
		topic  string
		want   ThingTopic
		wantOK bool
	}{
		{"webthing/things/lamp/properties/on/set", ThingTopic{"lamp", KindProperties, "on", "set"}, true},
		{"webthing/things/lamp/actions/fade/request", ThingTopic{"lamp", KindActions, "fade", "request"}, true},
		{"webthing/things/lamp/properties/on", ThingTopic{"lamp", KindProperties, "on", ""}, true},
		{"webthing/things/lamp/properties", ThingTopic{}, false},
		{"webthing/things/lamp/properties/on/set/extra", ThingTopic{}, false},
		{"webthing/things//properties/on", ThingTopic{}, false},
		{"other/things/lamp/properties/on/set", ThingTopic{}, false},
		{"webthing/system/status", ThingTopic{}, false},
	}
	for _, tt := range tests {
		got, ok := topics.Parse(tt.topic)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Parse(%q) = %+v, %v; want %+v, %v", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "user", Password: "secret"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "webthing-test" || opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("identity = %q/%q/%q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if !strings.HasPrefix(opts.Servers[0].String(), "ssl://") || opts.TLSConfig == nil {
		t.Errorf("TLS options not applied: %v", opts.Servers)
	}

	configureLWT(opts, NewTopics("home"))
	if !opts.WillEnabled || opts.WillTopic != "home/system/status" || string(opts.WillPayload) != "offline" || !opts.WillRetained {
		t.Errorf("will = %v %q %q %v", opts.WillEnabled, opts.WillTopic, opts.WillPayload, opts.WillRetained)
	}
}

func TestUnconnectedClient(t *testing.T) {
	c := newClient(testConfig())

	if c.IsConnected() {
		t.Fatal("IsConnected() = true before Connect")
	}
	if c.Topics().Prefix != "home" {
		t.Errorf("Topics().Prefix = %q", c.Topics().Prefix)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("a", nil, 3, false), ErrInvalidQoS},
		{"publish oversized", c.Publish("a", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.PublishRetained("a", []byte("1")), ErrNotConnected},
		{"event disconnected", c.PublishEvent("a", []byte("1")), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, func(string, []byte) error { return nil }), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("a", 3, func(string, []byte) error { return nil }), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("a", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("a", 1, func(string, []byte) error { return nil }), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("a"), ErrNotConnected},
		{"health", c.HealthCheck(context.Background()), ErrNotConnected},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, tt.err, tt.want)
		}
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client error = %v", err)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestDispatchRecoversAndLogs(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "a", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "a", nil)

	var got string
	c.dispatch(func(_ string, p []byte) error { got = string(p); return nil }, "a", []byte("ok"))

	if len(logger.errors) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors=%v warns=%v, want one of each", logger.errors, logger.warns)
	}
	if got != "ok" {
		t.Errorf("handler payload = %q", got)
	}
}

func TestConnectionCallbacks(t *testing.T) {
	c := newClient(testConfig())
	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })

	c.handleDisconnect(errors.New("network down"))
	if lost == nil || lost.Error() != "network down" {
		t.Errorf("OnDisconnect got %v", lost)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}
