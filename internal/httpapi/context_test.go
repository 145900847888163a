package httpapi

import (
	"context"
	"testing"
	"time"
)

func TestSetBaseContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	SetBaseContext(ctx)
	if serverBaseCtx != ctx {
		t.Fatal("base context not installed")
	}
	SetBaseContext(nil)
	if serverBaseCtx != context.Background() {
		t.Fatal("nil must reset to Background")
	}
}

func TestJoinContexts(t *testing.T) {
	waitDone := func(t *testing.T, ctx context.Context) {
		t.Helper()
		select {
		case <-ctx.Done():
		case <-time.After(500 * time.Millisecond):
			t.Fatal("joined context never canceled")
		}
	}

	// First parent cancels.
	a, ac := context.WithCancel(context.Background())
	b, bc := context.WithCancel(context.Background())
	defer bc()
	j, cancelJ := joinContexts(a, b)
	defer cancelJ()
	ac()
	waitDone(t, j)

	// Second parent cancels.
	a2, ac2 := context.WithCancel(context.Background())
	defer ac2()
	b2, bc2 := context.WithCancel(context.Background())
	j2, cancelJ2 := joinContexts(a2, b2)
	defer cancelJ2()
	bc2()
	waitDone(t, j2)
}
