// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for hioload-socket components.

package benchmarks

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/client"
	"github.com/momentics/hioload-socket/pool"
	"github.com/momentics/hioload-socket/protocol"
	"github.com/momentics/hioload-socket/server"
)

// BenchmarkSlotPool measures buffer slot checkout under contention.
func BenchmarkSlotPool(b *testing.B) {
	p := pool.NewSlotPool(64, 4096)
	defer p.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s, ok := p.TryGet()
			if ok {
				p.Put(s)
			}
		}
	})
}

// BenchmarkTerminatorFilter frames a stream of short command lines.
func BenchmarkTerminatorFilter(b *testing.B) {
	var stream bytes.Buffer
	for i := 0; i < 64; i++ {
		stream.WriteString("ECHO payload-" + strconv.Itoa(i) + "\r\n")
	}
	data := stream.Bytes()
	b.SetBytes(int64(len(data)))

	f := protocol.NewCommandLineFilter([]byte("\r\n"), nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		chunk := data
		for len(chunk) > 0 {
			pkg, rest, err := f.Filter(chunk)
			if err != nil {
				b.Fatal(err)
			}
			if pkg == nil && rest == 0 {
				break
			}
			chunk = chunk[len(chunk)-rest:]
		}
	}
}

func benchmarkEcho(b *testing.B, engine string) {
	cfg := server.DefaultConfig()
	cfg.IP = "127.0.0.1"
	cfg.Port = 0
	cfg.Engine = engine
	srv, err := server.New(cfg, server.WithCommands(map[string]api.CommandHandler{
		"ECHO": api.CommandFunc(func(s api.Session, p api.Package) error {
			return s.SendString(p.(*api.StringPackage).Body)
		}),
	}))
	if err != nil {
		b.Fatal(err)
	}
	if err := srv.Start(context.Background()); err != nil {
		b.Fatal(err)
	}
	defer srv.Stop()

	ctx := context.Background()
	c, err := client.Dial(ctx, client.Config{Addr: srv.Addr().String()})
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Do(ctx, "ECHO ping"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkEchoSync measures request/reply round trips on the sync engine.
func BenchmarkEchoSync(b *testing.B) { benchmarkEcho(b, "sync") }

// BenchmarkEchoAsync measures the same round trip through the worker pool.
func BenchmarkEchoAsync(b *testing.B) { benchmarkEcho(b, "async") }
