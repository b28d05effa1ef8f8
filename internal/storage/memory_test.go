package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
)

var (
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx   = context.Background()
)

const jwksDoc = `{"keys":[{"kid":"k1","kty":"RSA"}]}`

func newTestStorage() (*MemoryStorage, *clock.VirtualClock) {
	vc := clock.NewVirtualClock(epoch)
	return NewMemoryStorage(vc), vc
}

func TestMemoryStorage_SetGet(t *testing.T) {
	s, _ := newTestStorage()

	if err := s.Set(ctx, "jwks:team", []byte(jwksDoc), time.Hour); err != nil {
		t.Fatal(err)
	}

	val, err := s.Get(ctx, "jwks:team")
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != jwksDoc {
		t.Errorf("Get() = %q, want %q", val, jwksDoc)
	}

	val, err = s.Get(ctx, "jwks:other")
	if err != nil || val != nil {
		t.Errorf("Get(missing) = %q, %v, want nil, nil", val, err)
	}
}

func TestMemoryStorage_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		advance time.Duration
		present bool
	}{
		{"before deadline", 10 * time.Second, 9 * time.Second, true},
		{"at deadline", 10 * time.Second, 10 * time.Second, false},
		{"past deadline", 10 * time.Second, 11 * time.Second, false},
		{"no ttl", 0, 24 * 365 * time.Hour, true},
		{"negative ttl never expires", -time.Second, time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, vc := newTestStorage()
			if err := s.Set(ctx, "jwks:team", []byte(jwksDoc), tt.ttl); err != nil {
				t.Fatal(err)
			}

			vc.Advance(tt.advance)
			val, err := s.Get(ctx, "jwks:team")
			if err != nil {
				t.Fatal(err)
			}
			if (val != nil) != tt.present {
				t.Errorf("present = %v, want %v", val != nil, tt.present)
			}
		})
	}
}

func TestMemoryStorage_RefreshExtendsDeadline(t *testing.T) {
	s, vc := newTestStorage()

	s.Set(ctx, "jwks:team", []byte("v1"), time.Minute)
	vc.Advance(50 * time.Second)
	s.Set(ctx, "jwks:team", []byte("v2"), time.Minute)
	vc.Advance(50 * time.Second)

	val, _ := s.Get(ctx, "jwks:team")
	if string(val) != "v2" {
		t.Errorf("Get() after refresh = %q, want %q", val, "v2")
	}
}

func TestMemoryStorage_Delete(t *testing.T) {
	s, _ := newTestStorage()

	s.Set(ctx, "jwks:team", []byte(jwksDoc), 0)
	if err := s.Delete(ctx, "jwks:team"); err != nil {
		t.Fatal(err)
	}
	if val, _ := s.Get(ctx, "jwks:team"); val != nil {
		t.Error("key should be deleted")
	}
	if err := s.Delete(ctx, "jwks:team"); err != nil {
		t.Errorf("deleting a missing key should not error, got %v", err)
	}
}

func TestMemoryStorage_Cleanup(t *testing.T) {
	s, vc := newTestStorage()

	s.Set(ctx, "short", []byte("v"), 5*time.Second)
	s.Set(ctx, "long", []byte("v"), 10*time.Second)
	s.Set(ctx, "pinned", []byte("v"), 0)

	vc.Advance(7 * time.Second)
	if removed := s.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	vc.Advance(5 * time.Second)
	if removed := s.Cleanup(); removed != 1 {
		t.Errorf("second Cleanup() removed %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want only the pinned key", s.Len())
	}
}

func TestMemoryStorage_ValuesAreCopied(t *testing.T) {
	s, _ := newTestStorage()

	in := []byte("original")
	s.Set(ctx, "k", in, 0)
	in[0] = 'X'

	out, _ := s.Get(ctx, "k")
	out[1] = 'Y'

	again, _ := s.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("stored value aliased a caller slice: %q", again)
	}
}

func TestMemoryStorage_EmptyDocumentIsPresent(t *testing.T) {
	s, _ := newTestStorage()

	s.Set(ctx, "jwks:empty", nil, time.Minute)
	val, err := s.Get(ctx, "jwks:empty")
	if err != nil {
		t.Fatal(err)
	}
	if val == nil || len(val) != 0 {
		t.Errorf("Get(empty) = %#v, want a present empty value", val)
	}
}

func TestMemoryStorage_ConcurrentAccess(t *testing.T) {
	s, _ := newTestStorage()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("jwks:%d", i%10)
			s.Set(ctx, key, []byte(key), time.Minute)
			if v, _ := s.Get(ctx, key); v != nil && string(v) != key {
				t.Errorf("Get(%q) = %q", key, v)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 10 {
		t.Errorf("Len() = %d, want 10", s.Len())
	}
}

func TestMemoryStorage_ImplementsStorage(t *testing.T) {
	var _ Storage = NewMemoryStorage(clock.NewRealClock())
}
