package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Register, Parse("register"))
	assert.Equal(t, ResetPassword, Parse(" Reset-Password "))
	assert.Equal(t, Login, Parse("login"))
	assert.Equal(t, Login, Parse("signup"))
	assert.Equal(t, Login, Parse(""))
}

func TestFromPath(t *testing.T) {
	assert.Equal(t, Register, FromPath("/register"))
	assert.Equal(t, ResetPassword, FromPath("/reset-password"))
	assert.Equal(t, ResetPassword, FromPath("/reset"))
	assert.Equal(t, Login, FromPath("/login"))
	assert.Equal(t, Login, FromPath("/whatever"))
}

func TestRequires(t *testing.T) {
	name, pw, confirm := ResetPassword.Requires()
	assert.False(t, name)
	assert.False(t, pw)
	assert.False(t, confirm)

	name, pw, confirm = Register.Requires()
	assert.True(t, name && pw && confirm)

	name, pw, confirm = Login.Requires()
	assert.False(t, name)
	assert.True(t, pw)
	assert.False(t, confirm)
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/reset-password", ResetPassword.Path())
}
