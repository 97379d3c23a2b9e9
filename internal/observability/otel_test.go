package observability

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , broken, =x, tenant=7 ")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "7" {
		t.Fatalf("ParseHeaders: got=%v", got)
	}
	if ParseHeaders("  ") != nil {
		t.Fatalf("ParseHeaders(empty): want nil")
	}
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), nil, OtelConfig{Enabled: false})
	if shutdown == nil {
		t.Fatalf("InitOTel: shutdown must never be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
