package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginLogout(t *testing.T) {
	c := New()
	assert.False(t, c.LoggedIn())
	assert.ErrorIs(t, c.Login("   "), ErrInvalidUser)

	require.NoError(t, c.Login(" ana "))
	user, ok := c.User()
	assert.True(t, ok)
	assert.Equal(t, "ana", user)

	c.AddScreen(Screen{ID: "b", Addr: "10.0.0.2:9998"})
	c.AddScreen(Screen{ID: "a", Addr: "10.0.0.1:9998"})
	screens := c.Screens()
	require.Len(t, screens, 2)
	assert.Equal(t, "a", screens[0].ID)
	assert.False(t, screens[0].ConnectedAt.IsZero())

	assert.True(t, c.RemoveScreen("b"))
	assert.False(t, c.RemoveScreen("b"))

	closed := c.Logout()
	assert.Len(t, closed, 1)
	assert.False(t, c.LoggedIn())
	assert.Empty(t, c.Screens())
}
