package storage

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestGrantSignVerify(t *testing.T) {
	s, err := NewGrantSigner(testSecret)
	if err != nil {
		t.Fatalf("NewGrantSigner() error = %v", err)
	}

	token, err := s.Sign("videos/uploads/1/a.mp4", "PUT", "video/mp4", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Key != "videos/uploads/1/a.mp4" || claims.Method != "PUT" || claims.ContentType != "video/mp4" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestGrantExpired(t *testing.T) {
	s, _ := NewGrantSigner(testSecret)
	token, err := s.Sign("k.mp4", "PUT", "", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := s.Verify(token); !errors.Is(err, ErrGrantExpired) {
		t.Errorf("Verify() error = %v, want ErrGrantExpired", err)
	}
}

func TestGrantRejectsForeignKey(t *testing.T) {
	a, _ := NewGrantSigner(testSecret)
	b, _ := NewGrantSigner([]byte(strings.Repeat("z", 32)))

	token, err := a.Sign("k.mp4", "PUT", "", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(token); !errors.Is(err, ErrGrantInvalid) {
		t.Errorf("Verify() error = %v, want ErrGrantInvalid", err)
	}
	if _, err := a.Verify("not-a-token"); !errors.Is(err, ErrGrantInvalid) {
		t.Errorf("Verify(garbage) error = %v, want ErrGrantInvalid", err)
	}
}

func TestGrantSignerShortKey(t *testing.T) {
	if _, err := NewGrantSigner([]byte("short")); err == nil {
		t.Error("expected error for short signing key")
	}
}
