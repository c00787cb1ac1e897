// Package util provides helpers shared across integration tests.
//
// StartBackend serves a seeded fake CRUD backend over HTTP.
//
// StartMosquitto launches a disposable Mosquitto broker in a Docker container
// for MQTT-based tests. It returns the broker URL and a cleanup function.
//
// WaitForMetric polls a Prometheus metrics endpoint until the desired metric
// appears in the output.
package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/yatrik/scheduler/core/model"
	"github.com/yatrik/scheduler/internal/fakeapi"
	"github.com/yatrik/scheduler/infra/api"
)

const (
	// Default timeouts for helper operations
	MosquittoReadyTimeout = 5 * time.Second
	MetricTimeout         = 5 * time.Second

	AdminEmail    = "admin@yatrik.test"
	AdminPassword = "secret"

	pollInterval = 50 * time.Millisecond
)

// SeededStore returns one depot with a 120 minute route, two buses and a
// crew of two, enough for six trips at the default options.
func SeededStore() *fakeapi.Store {
	return fakeapi.NewStore().
		AddDepot(model.Depot{ID: "d1", Code: "KCH", Name: "Kochi"}).
		AddRoute(model.Route{ID: "r1", Number: "101", DepotID: "d1", EstimatedDuration: 120, BaseFare: 25}).
		AddBus(model.Bus{ID: "b1", DepotID: "d1", Capacity: 40}, model.Bus{ID: "b2", DepotID: "d1", Capacity: 40}).
		AddDriver(model.Staff{ID: "dr1", DepotID: "d1"}, model.Staff{ID: "dr2", DepotID: "d1"}).
		AddConductor(model.Staff{ID: "c1", DepotID: "d1"}, model.Staff{ID: "c2", DepotID: "d1"})
}

// StartBackend serves store through the fake CRUD API and returns the
// client configuration pointing at it.
func StartBackend(store *fakeapi.Store) (api.Config, *fakeapi.Server, func()) {
	fake := fakeapi.NewServer(store, AdminEmail, AdminPassword)
	srv := httptest.NewServer(fake)
	cfg := api.Config{BaseURL: srv.URL, Email: AdminEmail, Password: AdminPassword, BackoffMS: 1}
	return cfg, fake, srv.Close
}

// WaitForMetric polls the given metrics URL until the provided substring is
// found in the output or the context is done.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			body, rerr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if rerr != nil {
				return fmt.Errorf("read metrics body: %w", rerr)
			}
			if strings.Contains(string(body), substr) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("metric %q not found: %w", substr, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// StartMosquitto launches a temporary Mosquitto broker inside a Docker
// container and returns its broker URL along with a cleanup function.
func StartMosquitto(ctx context.Context) (string, func(), error) {
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
`

	dir, err := os.MkdirTemp("", "mosq")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}

	cleanup := func() {
		_ = cont.Terminate(context.Background())
		_ = os.RemoveAll(dir)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		cleanup()
		return "", nil, err
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())

	waitCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	if err := waitForMQTTReady(waitCtx, broker); err != nil {
		cleanup()
		return "", nil, err
	}

	return broker, cleanup, nil
}

func waitForMQTTReady(ctx context.Context, broker string) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	for {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
