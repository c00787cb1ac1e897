//go:build !no_containers

package test

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatrik/scheduler/app"
	"github.com/yatrik/scheduler/core/events"
	"github.com/yatrik/scheduler/core/factory"
	"github.com/yatrik/scheduler/test/util"
)

type collected struct {
	mu     sync.Mutex
	topics []string
	envs   []events.Envelope
}

func (c *collected) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.envs {
		if e.Event == event {
			n++
		}
	}
	return n
}

func subscribe(t *testing.T, broker, topic string) *collected {
	t.Helper()
	c := &collected{}
	cli := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("progress-watcher"))
	tok := cli.Connect()
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())
	t.Cleanup(func() { cli.Disconnect(100) })
	sub := cli.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		var env events.Envelope
		if err := json.Unmarshal(m.Payload(), &env); err != nil {
			t.Errorf("decode %s: %v", m.Topic(), err)
			return
		}
		c.mu.Lock()
		c.topics = append(c.topics, m.Topic())
		c.envs = append(c.envs, env)
		c.mu.Unlock()
	})
	require.True(t, sub.WaitTimeout(5*time.Second))
	require.NoError(t, sub.Error())
	return c
}

// TestProgressOverMQTT runs a schedule with the MQTT progress sink and
// watches the broker for the run's events.
func TestProgressOverMQTT(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto: %v", err)
	}
	defer cleanup()

	watched := subscribe(t, broker, "yatrik/schedule/#")

	apiCfg, _, stop := util.StartBackend(util.SeededStore())
	defer stop()
	cfg := newConfig(t)
	cfg.API = apiCfg
	cfg.Progress.Sinks = []factory.ModuleConfig{{
		Type: "mqtt",
		Conf: map[string]any{"broker": broker, "qos": 1, "retain_final": true},
	}}
	cfg.SetDefaults()

	svc, err := app.New(cfg)
	require.NoError(t, err)
	rep, err := svc.Schedule(ctx, svc.Defaults())
	require.NoError(t, err)
	require.Equal(t, 6, rep.Created)
	require.NoError(t, svc.Close())

	require.Eventually(t, func() bool {
		return watched.count("run_finished") == 1 && watched.count("trip_created") == 6
	}, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, watched.count("run_started"))
	assert.Equal(t, 6, watched.count("slot_allocated"))

	watched.mu.Lock()
	defer watched.mu.Unlock()
	for i, topic := range watched.topics {
		assert.True(t, strings.HasPrefix(topic, "yatrik/schedule/"+rep.RunID+"/"), topic)
		assert.Equal(t, rep.RunID, watched.envs[i].RunID)
	}
}

// TestAbortOverMQTT aborts a slow run with a control message.
func TestAbortOverMQTT(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto: %v", err)
	}
	defer cleanup()

	store := util.SeededStore()
	store.CreateDelay = 200 * time.Millisecond
	cfg := newConfig(t)
	cfg.Schedule.WriteConcurrency = 1
	cfg.Progress.Sinks = []factory.ModuleConfig{{
		Type: "mqtt",
		Conf: map[string]any{"broker": broker, "control_topic": "yatrik/control"},
	}}
	cfg.SetDefaults()

	svc, err := app.New(cfg, app.WithBackend(store, store))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	ctl := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("operator"))
	tok := ctl.Connect()
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())
	defer ctl.Disconnect(100)

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for !svc.Running() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		ctl.Publish("yatrik/control", 1, false, []byte(`{"action":"abort"}`)).Wait()
	}()
	rep, err := svc.Schedule(ctx, svc.Defaults())
	require.NoError(t, err)
	assert.True(t, rep.Cancelled)
	assert.Less(t, rep.Created, 6)
}
