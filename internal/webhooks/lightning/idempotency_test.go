package lightningwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"
)

type stubIdempotencyStore struct {
	keys   map[string]bool
	setErr error
	delErr error
}

func newStubIdempotencyStore() *stubIdempotencyStore {
	return &stubIdempotencyStore{keys: map[string]bool{}}
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (s *stubIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if s.keys[key] {
		return "1", nil
	}
	return "", nil
}

func (s *stubIdempotencyStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *stubIdempotencyStore) Del(_ context.Context, keys ...string) error {
	if s.delErr != nil {
		return s.delErr
	}
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func TestNewIdempotencyGuard_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewIdempotencyGuard(nil, time.Hour, "lightning"); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewIdempotencyGuard(newStubIdempotencyStore(), -time.Hour, "lightning"); err == nil {
		t.Fatalf("expected error for negative ttl")
	}
	if _, err := NewIdempotencyGuard(newStubIdempotencyStore(), time.Hour, ""); err == nil {
		t.Fatalf("expected error for empty scope")
	}
}

func TestIdempotencyGuard_MarksAndDetectsReplay(t *testing.T) {
	t.Parallel()

	guard, err := NewIdempotencyGuard(newStubIdempotencyStore(), time.Hour, "lightning")
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if seen {
		t.Fatalf("first delivery must not be marked as seen")
	}

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !seen {
		t.Fatalf("replay must be detected")
	}
}

func TestIdempotencyGuard_DeleteAllowsRetry(t *testing.T) {
	t.Parallel()

	guard, err := NewIdempotencyGuard(newStubIdempotencyStore(), time.Hour, "lightning")
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}
	ctx := context.Background()

	if _, err := guard.CheckAndMark(ctx, "evt_2"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := guard.Delete(ctx, "evt_2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	seen, err := guard.CheckAndMark(ctx, "evt_2")
	if err != nil {
		t.Fatalf("re-check: %v", err)
	}
	if seen {
		t.Fatalf("deleted mark must allow the retry through")
	}
}

func TestIdempotencyGuard_StoreFailureSurfaces(t *testing.T) {
	t.Parallel()

	store := newStubIdempotencyStore()
	store.setErr = errors.New("redis down")
	guard, err := NewIdempotencyGuard(store, time.Hour, "lightning")
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}

	if _, err := guard.CheckAndMark(context.Background(), "evt_3"); err == nil {
		t.Fatalf("expected store error to surface")
	}
	if _, err := guard.CheckAndMark(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty event id")
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event_id":"evt_1","type":"invoice.paid"}`)
	secret := "whsec_test"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	if err := VerifySignature(payload, valid, secret); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifySignature(payload, valid, "other-secret"); err == nil {
		t.Fatalf("signature for a different secret must fail")
	}
	if err := VerifySignature([]byte("tampered"), valid, secret); err == nil {
		t.Fatalf("tampered payload must fail")
	}
	if err := VerifySignature(payload, "not-hex", secret); err == nil {
		t.Fatalf("non-hex signature must fail")
	}
	if err := VerifySignature(payload, "", secret); err == nil {
		t.Fatalf("empty signature must fail")
	}
	if err := VerifySignature(payload, valid, ""); err == nil {
		t.Fatalf("missing secret must fail")
	}
}
