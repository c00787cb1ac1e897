package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/yatrik/scheduler/core/events"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func newTestPublisher(t *testing.T, mc *mockClient, cfg Config) *ProgressPublisher {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
	pub, err := NewProgressPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	return pub
}

func TestSendTopicAndQoS(t *testing.T) {
	mc := &mockClient{}
	pub := newTestPublisher(t, mc, Config{Broker: "tcp://localhost:1883", TopicPrefix: "depots/", QoS: 1, RetainFinal: true})
	env := events.Wrap(events.SlotSkipped{RunID: "run1", Reason: "NO_BUS"}, time.Now())
	if err := pub.Send(context.Background(), env); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := pub.Send(context.Background(), events.Wrap(events.RunFinished{RunID: "run1"}, time.Now())); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(mc.published))
	}
	if mc.published[0].topic != "depots/run1/slot_skipped" || mc.published[0].qos != 1 {
		t.Fatalf("unexpected publish %+v", mc.published[0])
	}
	if mc.published[0].retained || !mc.published[1].retained {
		t.Fatalf("only run_finished should be retained")
	}
	if !strings.Contains(string(mc.published[0].payload), `"reason":"NO_BUS"`) {
		t.Fatalf("payload missing reason: %s", mc.published[0].payload)
	}
}

func TestControlTopicAbort(t *testing.T) {
	mc := &mockClient{}
	pub := newTestPublisher(t, mc, Config{Broker: "tcp://localhost:1883", ControlTopic: "yatrik/control", QoS: 1})
	if len(mc.subscribed) != 1 || mc.subscribed[0].topic != "yatrik/control" {
		t.Fatalf("control topic not subscribed")
	}
	aborted := 0
	pub.OnAbort(func() bool { aborted++; return true })
	pub.onControl(nil, mockMessage{[]byte(`{"action":"abort"}`)})
	pub.onControl(nil, mockMessage{[]byte(`{"action":"pause"}`)})
	pub.onControl(nil, mockMessage{[]byte(`not json`)})
	if aborted != 1 {
		t.Fatalf("expected one abort, got %d", aborted)
	}
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	pub := newTestPublisher(t, mc, Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1})
	if !mc.opts.WillEnabled {
		t.Fatalf("will not enabled")
	}
	if mc.opts.WillTopic != "lwt" || string(mc.opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
	_ = pub.Close()
	if len(mc.published) != 0 {
		t.Fatalf("unexpected publish on disconnect")
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	pub := newTestPublisher(t, mc, Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err := pub.Send(context.Background(), events.Wrap(events.TripCreated{RunID: "r"}, time.Now())); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected retries")
	}
}

func TestNoWaitAfterLastAttempt(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}}
	pub := newTestPublisher(t, mc, Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 300})
	start := time.Now()
	if err := pub.Send(context.Background(), events.Wrap(events.TripCreated{RunID: "r"}, time.Now())); err == nil {
		t.Fatalf("expected error")
	}
	// one wait of at most 1.5x the initial interval
	if d := time.Since(start); d > 700*time.Millisecond {
		t.Fatalf("send waited %s after the final attempt", d)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected two attempts, got %d", len(mc.published))
	}
}

func TestValidateRequiresBroker(t *testing.T) {
	if _, err := NewProgressPublisher(Config{}); err == nil {
		t.Fatalf("expected error without broker")
	}
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	published   []published
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, published{topic: topic, qos: qos, retained: retained, payload: b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
