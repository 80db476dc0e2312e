package reqctx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/news/5?page=2", nil)
	r.AddCookie(&http.Cookie{Name: FavouritesCookie, Value: "12%2C7"})

	rc := New(r)
	assert.NotEmpty(t, rc.ID)
	assert.Equal(t, http.MethodGet, rc.Method)
	assert.Equal(t, []string{"news", "5"}, rc.Segments)
	assert.Equal(t, "2", rc.Query.Get("page"))
	assert.Equal(t, []string{"12", "7"}, rc.Favourites)
	assert.True(t, rc.IsFavourite("7"))
	assert.False(t, rc.IsFavourite("5"))
	assert.False(t, rc.Authenticated())
}

func TestNewKeepsRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc")

	rc := New(r)
	assert.Equal(t, "abc", rc.ID)
	assert.Equal(t, []string{"home"}, rc.Segments)
	assert.Empty(t, rc.Favourites)
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, From(context.Background()))

	rc := &Context{ID: "x", Subject: "editor"}
	got := From(With(context.Background(), rc))
	require.NotNil(t, got)
	assert.Same(t, rc, got)
	assert.True(t, got.Authenticated())
}
