package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/BaSui01/millennium/internal/telemetry"
)

func TestBridge_HandshakeSpans(t *testing.T) {
	orig := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	tr := newFakeTransport("ws://host/frontend/bravo")
	b := newTestBridge(t, tr)

	ok := b.ConnectFrontend(context.Background(), "alpha", "ws://host/frontend/alpha")
	bad := b.ConnectFrontend(context.Background(), "bravo", "ws://host/frontend/bravo")
	waitOpen(t, ok)
	assert.Eventually(t, func() bool { return bad.State() == StateFailed }, waitFor, tick)

	var okSpans, failed int
	for _, s := range recorder.Ended() {
		if s.Name() != "bridge.handshake" {
			continue
		}
		assert.Equal(t, telemetry.ScopeBridge, s.InstrumentationScope().Name)
		attrs := make(map[string]string)
		for _, kv := range s.Attributes() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		if s.Status().Code == codes.Error {
			failed++
			assert.Equal(t, "bravo", attrs[string(telemetry.AttrPlugin)])
			assert.Equal(t, "ws://host/frontend/bravo", attrs[string(telemetry.AttrEndpoint)])
		} else {
			okSpans++
			assert.Equal(t, "frontend:alpha", attrs[string(telemetry.AttrTarget)])
		}
	}
	assert.Equal(t, 1, okSpans)
	assert.Equal(t, fastConfig().MaxAttempts, failed)
}
