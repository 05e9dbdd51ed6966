package debughttp

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"careclock/pkg/logx"
)

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:6061": true,
		"localhost:80":   true,
		"[::1]:6061":     true,
		":6061":          false,
		"0.0.0.0:6061":   false,
		"10.0.0.2:6061":  false,
		"nonsense":       false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v want %v", addr, got, want)
		}
	}
}

func waitAddr(t *testing.T, s *Service) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != "" {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("debug server never bound")
	return ""
}

func TestStatusRequiresToken(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "sekret"}, func() any {
		return map[string]int{"reminders": 3}
	}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	base := "http://" + waitAddr(t, s)

	resp, err := http.Get(base + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/status", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d want 200", resp.StatusCode)
	}
	var got map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["reminders"] != 3 {
		t.Fatalf("got %v want reminders=3", got)
	}
}

func TestDisabledDoesNotListen(t *testing.T) {
	t.Parallel()

	s := New(Config{Addr: "127.0.0.1:0"}, nil, logx.Nop())
	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	if a := s.Addr(); a != "" {
		t.Fatalf("disabled server bound to %s", a)
	}
	s.Stop(context.Background())
}
