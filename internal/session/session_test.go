package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketrag/internal/domain"
)

func TestSession(t *testing.T) {
	s := New()
	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)

	s.Append(domain.RoleUser, "hi")
	s.Append(domain.RoleAssistant, "hello")
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "hi"}, msgs[0])

	msgs[0].Content = "changed"
	assert.Equal(t, "hi", s.Messages()[0].Content, "log is not shared with callers")

	assert.Equal(t, FormNone, s.Form())
	s.OpenForm(FormProduct)
	assert.Equal(t, FormProduct, s.Form())
	s.CloseForm()
	assert.Equal(t, FormNone, s.Form())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(time.Hour)

	a, existed := r.Get("")
	assert.False(t, existed)
	b, existed := r.Get(a.ID)
	assert.True(t, existed)
	assert.Same(t, a, b)

	c, existed := r.Get("unknown")
	assert.False(t, existed)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryDropsIdleSessions(t *testing.T) {
	r := NewRegistry(300 * time.Millisecond)
	a, _ := r.Get("")

	time.Sleep(200 * time.Millisecond)
	_, existed := r.Get(a.ID)
	require.True(t, existed)
	time.Sleep(200 * time.Millisecond)
	_, existed = r.Get(a.ID)
	require.True(t, existed, "access restarts the idle timer")

	time.Sleep(600 * time.Millisecond)
	b, existed := r.Get(a.ID)
	assert.False(t, existed)
	assert.NotEqual(t, a.ID, b.ID)
}
