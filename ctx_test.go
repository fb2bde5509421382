package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionFromContext(t *testing.T) {
	tests := []struct {
		name     string
		setupCtx func() context.Context
		wantID   string
		wantOK   bool
	}{
		{
			name: "should return session when present in context",
			setupCtx: func() context.Context {
				return WithSession(context.Background(), &SessionObject{
					PrincipalID: "alice",
					ExpiresAt:   time.Now().Add(time.Hour),
				})
			},
			wantID: "alice",
			wantOK: true,
		},
		{
			name: "should return false when no session in context",
			setupCtx: func() context.Context {
				return context.Background()
			},
			wantOK: false,
		},
		{
			name: "should return false for a foreign value under a similar key",
			setupCtx: func() context.Context {
				return context.WithValue(context.Background(), contextKey{"session"}, "alice")
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, ok := SessionFromContext(tt.setupCtx())
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, session.GetPrincipalID())
			}
		})
	}
}

func TestPrincipalFromContext(t *testing.T) {
	_, err := PrincipalFromContext(context.Background())
	assert.ErrorIs(t, err, ErrUnableToFindSession)

	ctx := WithSession(context.Background(), &SessionObject{PrincipalID: "alice"})
	id, err := PrincipalFromContext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "alice", id)
}
