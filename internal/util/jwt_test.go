package util

import (
	"school_dashboard_backend/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{Email: "ann@example.com", Role: model.Student}
	user.ID = 42

	token, err := GenerateJWT(user, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, model.Student, claims.Role)
	assert.Equal(t, "42", claims.ExamineeID())
}

func TestParseJWTRejects(t *testing.T) {
	user := &model.User{Email: "ann@example.com", Role: model.Student}
	user.ID = 1

	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateJWT(user, "secret", time.Hour)
		require.NoError(t, err)
		_, err = ParseJWT(token, "other")
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := GenerateJWT(user, "secret", -time.Minute)
		require.NoError(t, err)
		_, err = ParseJWT(token, "secret")
		assert.Error(t, err)
	})
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		page, limit         string
		wantPage, wantLimit int
	}{
		{"", "", DefaultPage, DefaultLimit},
		{"3", "10", 3, 10},
		{"-1", "abc", DefaultPage, DefaultLimit},
		{"2", "1000", 2, MaxLimit},
	}
	for _, tc := range cases {
		page, limit := ParsePage(tc.page, tc.limit)
		assert.Equal(t, tc.wantPage, page)
		assert.Equal(t, tc.wantLimit, limit)
	}
}
