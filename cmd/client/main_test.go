package main

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/wirerelay/internal/log"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// runAgainst drives run over an in-memory pipe while relay plays the server side.
func runAgainst(t *testing.T, maxFrame int, stdin string, relay func(server net.Conn)) string {
	t.Helper()

	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	go func() {
		defer server.Close()
		relay(server)
	}()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- run(client, "tok", maxFrame, strings.NewReader(stdin), &out, log.Nop())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client did not finish")
	}
	return out.String()
}

func TestClientHonoursMaxFrame(t *testing.T) {
	const maxFrame = 128 * 1024
	big := strings.Repeat("y", proto.DefaultMaxFrameSize+100)

	out := runAgainst(t, maxFrame, "", func(server net.Conn) {
		if tok, err := proto.ReadText(server, maxFrame); err != nil || tok != "tok" {
			t.Errorf("unexpected token %q: %v", tok, err)
			return
		}
		if err := proto.WriteText(server, big, maxFrame); err != nil {
			t.Errorf("write envelope: %v", err)
			return
		}
		if exit, err := proto.ReadText(server, maxFrame); err != nil || exit != "!exit" {
			t.Errorf("expected !exit, got %q: %v", exit, err)
		}
	})

	if out != big+"\n" {
		t.Fatalf("expected %d-byte envelope printed, got %d bytes", len(big), len(out))
	}
}

func TestClientSkipsLinesOverMaxFrame(t *testing.T) {
	const maxFrame = 16
	got := make(chan []string, 1)

	runAgainst(t, maxFrame, "this line is far too long\nok\n", func(server net.Conn) {
		var units []string
		for {
			text, err := proto.ReadText(server, maxFrame)
			if err != nil {
				break
			}
			units = append(units, text)
			if text == "!exit" {
				break
			}
		}
		got <- units
	})

	units := <-got
	want := []string{"tok", "ok", "!exit"}
	if strings.Join(units, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, units)
	}
}
