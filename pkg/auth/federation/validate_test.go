package federation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	fixedNow := func() time.Time { return now }

	valid := func() *Identity {
		return &Identity{
			Subject:   "u-1",
			Email:     "alice@example.com",
			Issuer:    "https://broker.example.com",
			Audience:  "client-abc",
			IssuedAt:  now.Add(-time.Minute),
			ExpiresAt: now.Add(time.Hour),
			Extra:     map[string]any{"token_use": "id"},
		}
	}

	tests := []struct {
		name      string
		validator Validator
		mutate    func(*Identity)
		wantErr   bool
	}{
		{
			name:      "valid identity passes all configured checks",
			validator: Validator{Issuer: "https://broker.example.com", Audience: "client-abc", ExpectedUse: "id"},
		},
		{
			name:      "expired token rejected",
			validator: Validator{},
			mutate:    func(id *Identity) { id.ExpiresAt = now.Add(-time.Second) },
			wantErr:   true,
		},
		{
			name:      "zero expiry rejected",
			validator: Validator{},
			mutate:    func(id *Identity) { id.ExpiresAt = time.Time{} },
			wantErr:   true,
		},
		{
			name:      "issuer mismatch rejected",
			validator: Validator{Issuer: "https://broker.example.com"},
			mutate:    func(id *Identity) { id.Issuer = "https://evil.example.com" },
			wantErr:   true,
		},
		{
			name:      "issuer check skipped when unconfigured",
			validator: Validator{},
			mutate:    func(id *Identity) { id.Issuer = "https://anything.example.com" },
		},
		{
			name:      "audience mismatch rejected",
			validator: Validator{Audience: "client-abc"},
			mutate:    func(id *Identity) { id.Audience = "other-client" },
			wantErr:   true,
		},
		{
			name:      "wrong token_use rejected",
			validator: Validator{ExpectedUse: "id"},
			mutate:    func(id *Identity) { id.Extra["token_use"] = "access" },
			wantErr:   true,
		},
		{
			name:      "absent token_use tolerated",
			validator: Validator{ExpectedUse: "id"},
			mutate:    func(id *Identity) { delete(id.Extra, "token_use") },
		},
		{
			name:      "signature verification without key source fails closed",
			validator: Validator{VerifySignature: true},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := tt.validator
			v.now = fixedNow

			id := valid()
			if tt.mutate != nil {
				tt.mutate(id)
			}

			err := v.Validate(context.Background(), id, "")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToken)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("nil identity rejected", func(t *testing.T) {
		t.Parallel()
		v := Validator{}
		assert.ErrorIs(t, v.Validate(context.Background(), nil, ""), ErrInvalidToken)
	})
}
