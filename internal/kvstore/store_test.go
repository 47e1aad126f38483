package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_NamespacesKeys(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	a := Scope(mem, "a")
	b := Scope(mem, "b")

	require.NoError(t, a.Set(ctx, KeyTheme, []byte("light")))
	require.NoError(t, b.Set(ctx, KeyTheme, []byte("dark")))

	got, err := a.Get(ctx, KeyTheme)
	require.NoError(t, err)
	assert.Equal(t, "light", string(got))

	raw, err := mem.Get(ctx, "client:b:theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", string(raw))

	require.NoError(t, a.Delete(ctx, KeyTheme))
	_, err = a.Get(ctx, KeyTheme)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, mem.Keys())
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	type payload struct {
		UID  string `json:"uid"`
		Role string `json:"role"`
	}

	require.NoError(t, SetJSON(ctx, mem, KeyUserCache, payload{UID: "u1", Role: "admin"}))

	var got payload
	require.NoError(t, GetJSON(ctx, mem, KeyUserCache, &got))
	assert.Equal(t, payload{UID: "u1", Role: "admin"}, got)

	err := GetJSON(ctx, mem, "missing", &got)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mem.Set(ctx, "broken", []byte("{not json")))
	err = GetJSON(ctx, mem, "broken", &got)
	assert.ErrorContains(t, err, "unmarshal broken failed")
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	buf := []byte("dark")
	require.NoError(t, mem.Set(ctx, KeyTheme, buf))
	buf[0] = 'X'

	got, err := mem.Get(ctx, KeyTheme)
	require.NoError(t, err)
	assert.Equal(t, "dark", string(got))
}
