package credential

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/checkin/internal/store/file"
)

func TestStore_RoundTrip(t *testing.T) {
	backend, err := file.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(backend)
	s.Now = func() time.Time { return time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "alpha"); ok || err != nil {
		t.Fatalf("Get() on empty store = %v, %v", ok, err)
	}
	const cookie = "uid=1; c_secure_pass=abc; 中文=值"
	if err := s.Put(ctx, "alpha", cookie); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	c, ok, err := s.Get(ctx, "alpha")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if c.Value != cookie || c.Date != "2024-05-10" || c.UpdatedAt != "2024-05-10T08:00:00Z" {
		t.Fatalf("Get() = %+v", c)
	}
}
