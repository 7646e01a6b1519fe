package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer x ,bad, =skip,tenant=icarus")
	if len(headers) != 2 {
		t.Fatalf("expected two headers, got %v", headers)
	}
	if headers["authorization"] != "Bearer x" || headers["tenant"] != "icarus" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestInitWithoutExporters(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
	if _, err := Init(context.Background(), Config{ServiceName: "icarusd", SampleRatio: 2}); err == nil {
		t.Fatalf("expected out of range sample ratio to fail")
	}
	shutdown, err := Init(context.Background(), Config{ServiceName: "icarusd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestResourceDescribesDeployment(t *testing.T) {
	res, err := newResource(Config{
		ServiceName:    "icarusd",
		Environment:    "local",
		Markets:        []string{"m1", "m2"},
		SlotsPerEpoch:  432,
		StorageBackend: "bolt",
	})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	set := res.Set()
	if v, ok := set.Value(attribute.Key("service.name")); !ok || v.AsString() != "icarusd" {
		t.Fatalf("missing service name: %v", v)
	}
	if v, ok := set.Value(AttrMarkets); !ok || len(v.AsStringSlice()) != 2 {
		t.Fatalf("missing markets: %v", v)
	}
	if v, ok := set.Value(AttrSlotsPerEpoch); !ok || v.AsInt64() != 432 {
		t.Fatalf("missing slots per epoch: %v", v)
	}
	if v, ok := set.Value(AttrStorage); !ok || v.AsString() != "bolt" {
		t.Fatalf("missing storage backend: %v", v)
	}

	bare, err := newResource(Config{ServiceName: "icarusd"})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	if _, ok := bare.Set().Value(AttrMarkets); ok {
		t.Fatalf("markets attribute should be omitted when unset")
	}
}

func TestSamplerRatio(t *testing.T) {
	always := sdktrace.AlwaysSample().Description()
	if got := sampler(0).Description(); got != always {
		t.Fatalf("zero ratio should keep everything, got %s", got)
	}
	if got := sampler(1).Description(); got != always {
		t.Fatalf("full ratio should keep everything, got %s", got)
	}
	if got := sampler(0.25).Description(); got == always {
		t.Fatalf("partial ratio should sample")
	}
}
