package rules

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// serve starts an in-memory fasthttp server and returns a client dialing it.
func serve(t *testing.T, handler fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })

	return &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}
}

func TestHTTPSource(t *testing.T) {
	t.Run("FetchesWithoutCache", func(t *testing.T) {
		var gotV, gotCache string
		client := serve(t, func(ctx *fasthttp.RequestCtx) {
			gotV = string(ctx.QueryArgs().Peek("v"))
			gotCache = string(ctx.Request.Header.Peek("Cache-Control"))
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"version": "remote-1", "roundingUnit": 1000}`)
		})

		src := &HTTPSource{
			URL:     "http://rules.local/rules.json?lang=ko",
			Client:  client,
			Timeout: time.Second,
			now:     func() time.Time { return time.UnixMilli(1_700_000_000_000) },
		}
		doc, err := src.Fetch(t.Context())
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if doc.Version != "remote-1" || doc.RoundingUnit != 1000 {
			t.Errorf("unexpected doc %+v", doc)
		}
		if gotV != "1700000000000" {
			t.Errorf("expected cache-busting v, got %q", gotV)
		}
		if gotCache != "no-store" {
			t.Errorf("expected no-store, got %q", gotCache)
		}
	})

	t.Run("StatusError", func(t *testing.T) {
		client := serve(t, func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		})
		src := &HTTPSource{URL: "http://rules.local/missing.json", Client: client, Timeout: time.Second}
		_, err := src.Fetch(t.Context())
		if err == nil || !strings.Contains(err.Error(), "status 404") {
			t.Errorf("expected status error, got %v", err)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		client := serve(t, func(ctx *fasthttp.RequestCtx) {
			ctx.SetBodyString(`<html>`)
		})
		src := &HTTPSource{URL: "http://rules.local/rules.json", Client: client, Timeout: time.Second}
		if _, err := src.Fetch(t.Context()); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		src := NewHTTPSource("http://rules.local/rules.json", time.Second)
		if _, err := src.Fetch(ctx); err == nil {
			t.Error("expected context error")
		}
	})
}
