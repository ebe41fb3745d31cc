package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	audit "clinicaudit/pkg/platform/audit"
)

func TestActor(t *testing.T) {
	t.Run("authenticated request", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), Principal{UserID: "u1", Username: "alice", Role: "clinician"})
		ctx = WithClientIP(ctx, "10.1.2.3")
		assert.Equal(t, audit.Actor{UserID: "u1", Username: "alice", IPAddress: "10.1.2.3"}, Actor(ctx))
	})

	t.Run("anonymous request keeps the IP", func(t *testing.T) {
		ctx := WithClientIP(context.Background(), "10.1.2.3")
		_, ok := PrincipalFrom(ctx)
		assert.False(t, ok)
		assert.Equal(t, audit.Actor{IPAddress: "10.1.2.3"}, Actor(ctx))
	})
}

func TestNowFallsBack(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
	assert.WithinDuration(t, time.Now(), Now(context.Background()), time.Second)
}
