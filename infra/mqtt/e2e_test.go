//go:build e2e

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startMosquitto spins up a Mosquitto broker allowing anonymous clients.
func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "1883")
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestOfferRoundTripThroughBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	broker := startMosquitto(ctx, t)

	received := make(chan []byte, 1)
	driverOpts := paho.NewClientOptions().AddBroker(broker).SetClientID("driver-app")
	driver := paho.NewClient(driverOpts)
	token := driver.Connect()
	require.True(t, token.WaitTimeout(10*time.Second))
	require.NoError(t, token.Error())
	defer driver.Disconnect(100)
	sub := driver.Subscribe("resqmeals/drivers/driver:b/offers", 1, func(_ paho.Client, m paho.Message) {
		received <- m.Payload()
	})
	require.True(t, sub.WaitTimeout(10*time.Second))

	accepted := make(chan Acceptance, 1)
	p, err := NewOfferPublisher(Config{Broker: broker, ClientID: "gateway", QoS: 1, AcceptTopic: "resqmeals/drivers/+/accept"})
	require.NoError(t, err)
	defer p.Close()
	p.OnAccept(func(a Acceptance) error { accepted <- a; return nil })

	require.NoError(t, p.Notify(ctx, testOffer()))
	select {
	case payload := <-received:
		var got map[string]any
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, "job_1", got["job_id"])
	case <-time.After(10 * time.Second):
		t.Fatal("offer not received")
	}

	pub := driver.Publish("resqmeals/drivers/driver:b/accept", 1, false, `{"job_id":"job_1","driver_id":"driver:b","driver_name":"Ben"}`)
	require.True(t, pub.WaitTimeout(10*time.Second))
	select {
	case a := <-accepted:
		assert.Equal(t, "job_1", a.JobID)
	case <-time.After(10 * time.Second):
		t.Fatal("acceptance not handled")
	}
}
