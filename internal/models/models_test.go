package models

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusHelpers(t *testing.T) {
	assert.False(t, IsTerminal(StatusWaiting))
	assert.True(t, IsTerminal(StatusSuccess))
	assert.True(t, IsTerminal(StatusError))
	assert.True(t, ValidStatus(StatusWaiting))
	assert.False(t, ValidStatus("running"))
}

func TestModuleString(t *testing.T) {
	m := Module{Content: map[string]any{"title": "Hello", "count": 3}}
	assert.Equal(t, "Hello", m.String("title"))
	assert.Empty(t, m.String("count"))
	assert.Empty(t, Module{}.String("title"))
}

func TestResultConstructors(t *testing.T) {
	assert.Equal(t, Result{Success: true, Code: http.StatusOK, Data: 1}, OK(1))
	assert.Equal(t, http.StatusCreated, Created(nil).Code)
	r := Fail(http.StatusNotFound, "missing")
	assert.False(t, r.Success)
	assert.Equal(t, "missing", r.Message)
}
