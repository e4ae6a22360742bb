package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/99designs/keyring"

	"github.com/nhle/tempmail/internal/store"
)

func TestKeyringRoundTrip(t *testing.T) {
	k := New(keyring.NewArrayKeyring(nil))
	ctx := context.Background()

	if _, err := k.Get(ctx, "session"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get on empty keyring error = %v, want ErrNotFound", err)
	}

	if err := k.Set(ctx, "session", `{"address":"a@b.c"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := k.Get(ctx, "session")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != `{"address":"a@b.c"}` {
		t.Errorf("Get = %q", got)
	}

	if err := k.Delete(ctx, "session"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := k.Delete(ctx, "session"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := k.Get(ctx, "session"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after Delete error = %v, want ErrNotFound", err)
	}
}
