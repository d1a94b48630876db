package shutdown

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestHooksRunInReverseAndJoinErrors(t *testing.T) {
	var order []string
	var h Hooks
	h.Add("db", func(context.Context) error { order = append(order, "db"); return nil })
	h.Add("cache", func(context.Context) error { order = append(order, "cache"); return errors.New("closed twice") })
	h.Add("server", func(context.Context) error { order = append(order, "server"); return nil })

	err := h.Run(context.Background())
	if got := strings.Join(order, ","); got != "server,cache,db" {
		t.Fatalf("order=%s", got)
	}
	if err == nil || !strings.Contains(err.Error(), "cache: closed twice") {
		t.Fatalf("err=%v", err)
	}
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("second run should be a no-op: %v", err)
	}
}
