package redisutil

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestConnect(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer srv.Close()

	client, err := Connect("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.Set(t.Context(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestConnectBadURL(t *testing.T) {
	if _, err := Connect("not-a-url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		if !isTruthy(v) {
			t.Fatalf("expected %q truthy", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off"} {
		if isTruthy(v) {
			t.Fatalf("expected %q falsy", v)
		}
	}
}
