package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "abcdefghijklmnopqrstuvwxyz123456"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RoomTTL != 24*time.Hour {
		t.Fatalf("expected 24h room ttl, got %s", cfg.RoomTTL)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected sqlite default driver, got %q", cfg.DBDriver)
	}
	if cfg.RedisEnabled() {
		t.Fatal("redis must be disabled without REDIS_ADDR")
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", testSecret)
	t.Setenv("ROOM_TTL", "tomorrow")

	_, err := Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if got := errorClass(err); got != "parse" {
		t.Fatalf("expected parse classification, got %q (%v)", got, err)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "short secret", env: map[string]string{"JWT_ACCESS_SECRET": "short"}, want: "JWT_ACCESS_SECRET"},
		{name: "bad driver", env: map[string]string{"JWT_ACCESS_SECRET": testSecret, "DB_DRIVER": "mysql"}, want: "DB_DRIVER"},
		{name: "redis limiter without addr", env: map[string]string{"JWT_ACCESS_SECRET": testSecret, "RATE_LIMIT_BACKEND": "redis"}, want: "REDIS_ADDR"},
		{name: "pong shorter than ping", env: map[string]string{"JWT_ACCESS_SECRET": testSecret, "WS_PING_PERIOD": "30s", "WS_PONG_WAIT": "10s"}, want: "WS_PONG_WAIT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
			if got := errorClass(err); got != "validation" {
				t.Fatalf("expected validation classification, got %q", got)
			}
		})
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" http://a , ,http://b,")
	if len(got) != 2 || got[0] != "http://a" || got[1] != "http://b" {
		t.Fatalf("unexpected split: %#v", got)
	}
}
