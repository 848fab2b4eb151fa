//go:build integration

package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/textgate/textgate/internal/config"
	inats "github.com/textgate/textgate/internal/nats"
)

// StartNATS runs a JetStream-enabled server and returns a connected client
// whose streams already exist.
func StartNATS(t *testing.T) *inats.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"--jetstream", "--store_dir", "/data"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting nats container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("nats host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		t.Fatalf("nats port: %v", err)
	}

	client, err := inats.NewClient(ctx, config.NATSConfig{URL: fmt.Sprintf("nats://%s:%s", host, port.Port())})
	if err != nil {
		t.Fatalf("connecting to nats: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}
