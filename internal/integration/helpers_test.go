//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("climate-etl-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// powerBody renders a daily point response with one day of values.
func powerBody(dateKey string, temp float64) string {
	return fmt.Sprintf(`{
  "properties": {"parameter": {
    "T2M": {%[1]q: %[2]v},
    "T2M_MAX": {%[1]q: %[3]v},
    "T2M_MIN": {%[1]q: %[4]v},
    "RH2M": {%[1]q: 41.1},
    "PRECTOTCORR": {%[1]q: 0.4},
    "WS2M": {%[1]q: 2.8},
    "WD2M": {%[1]q: 221.6},
    "ALLSKY_SFC_SW_DWN": {%[1]q: -999},
    "PS": {%[1]q: 97.8},
    "TS": {%[1]q: 33.1}
  }},
  "header": {"fill_value": -999}
}`, dateKey, temp, temp+8, temp-7)
}

// fakePower serves canned daily responses. The region at failLongitude gets
// 404 and the first request overall gets 429.
type fakePower struct {
	*httptest.Server
	requests atomic.Int64
}

func newFakePower(t *testing.T, dateKey string, failLongitude string) *fakePower {
	t.Helper()
	fp := &fakePower{}
	fp.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := fp.requests.Add(1)
		lon := r.URL.Query().Get("longitude")
		switch {
		case lon == failLongitude:
			w.WriteHeader(http.StatusNotFound)
			return
		case n == 1:
			// The very first request is throttled once to exercise the retry path.
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		temp, _ := strconv.ParseFloat(r.URL.Query().Get("latitude"), 64)
		_, _ = io.WriteString(w, powerBody(dateKey, 20+temp))
	}))
	t.Cleanup(fp.Close)
	return fp
}
