package security

import (
	"testing"
	"time"

	"PPDirect/tools/errs"
)

func TestGenerateResolveRoundtrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	token, exp, err := Generate(opts, "user-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expire time should be in the future")
	}
	got, err := Resolve(opts, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "user-1" {
		t.Fatalf("resolved user = %q, want user-1", got)
	}
}

func TestResolveWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultOptions([]byte("right")), "user-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, err = Resolve(DefaultOptions([]byte("wrong")), token)
	if errs.Code(err) != errs.TokenInvalidCode {
		t.Fatalf("want TokenInvalidCode, got %v", err)
	}
}

func TestResolveExpired(t *testing.T) {
	opts := Options{Secret: []byte("s"), Alg: "HS256", TTL: time.Nanosecond}
	token, _, err := Generate(opts, "user-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	_, err = Resolve(opts, token)
	if errs.Code(err) != errs.TokenExpiredCode {
		t.Fatalf("want TokenExpiredCode, got %v", err)
	}
}

func TestResolveEmptyToken(t *testing.T) {
	_, err := Resolve(DefaultOptions([]byte("s")), "  ")
	if errs.Code(err) != errs.TokenInvalidCode {
		t.Fatalf("want TokenInvalidCode, got %v", err)
	}
}
