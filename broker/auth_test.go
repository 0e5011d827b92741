package broker

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func TestAuthenticate(t *testing.T) {
	t.Run("missing origin header", func(t *testing.T) {
		a := &authenticator{mapping: newFakeInventory("dev1"), catalogue: newFakeInventory("dev1")}
		origin, ok := a.authenticate(http.Header{}, "10.0.0.1:1")
		assert.False(t, ok)
		assert.Empty(t, origin)
	})

	t.Run("no mapping configured", func(t *testing.T) {
		a := &authenticator{mapping: nil, catalogue: newFakeInventory()}
		header := http.Header{}
		header.Set("Origin", "dev1")
		origin, ok := a.authenticate(header, "10.0.0.1:1")
		assert.False(t, ok)
		assert.Equal(t, "dev1", origin)
	})

	t.Run("unknown origin", func(t *testing.T) {
		inventory := newFakeInventory("dev1")
		a := &authenticator{mapping: inventory, catalogue: inventory}
		header := http.Header{}
		header.Set("Origin", "stranger")
		_, ok := a.authenticate(header, "10.0.0.1:1")
		assert.False(t, ok)
	})

	t.Run("created but not loaded", func(t *testing.T) {
		// catalogue knows the device, mapping does not
		mapping := newFakeInventory()
		catalogue := newFakeInventory("dev1")
		a := &authenticator{mapping: mapping, catalogue: catalogue}
		header := http.Header{}
		header.Set("Origin", "dev1")
		_, ok := a.authenticate(header, "10.0.0.1:1")
		assert.False(t, ok)
	})

	t.Run("no auths configured accepts known device", func(t *testing.T) {
		inventory := newFakeInventory("dev1")
		a := &authenticator{mapping: inventory, catalogue: inventory}
		header := http.Header{}
		header.Set("Origin", "dev1")
		origin, ok := a.authenticate(header, "10.0.0.1:1")
		assert.True(t, ok)
		assert.Equal(t, "dev1", origin)
	})

	t.Run("auth required but header missing", func(t *testing.T) {
		inventory := newFakeInventory("dev1")
		inventory.auths = []Credential{{Username: "user", Password: "secret"}}
		a := &authenticator{mapping: inventory, catalogue: inventory}
		header := http.Header{}
		header.Set("Origin", "dev1")
		_, ok := a.authenticate(header, "10.0.0.1:1")
		assert.False(t, ok)
	})

	t.Run("valid credentials accepted", func(t *testing.T) {
		inventory := newFakeInventory("dev1")
		inventory.auths = []Credential{{Username: "user", Password: "secret"}}
		a := &authenticator{mapping: inventory, catalogue: inventory}
		header := http.Header{}
		header.Set("Origin", "dev1")
		header.Set("Authorization", basicAuth("user", "secret"))
		_, ok := a.authenticate(header, "10.0.0.1:1")
		assert.True(t, ok)
	})

	t.Run("wrong credentials rejected", func(t *testing.T) {
		inventory := newFakeInventory("dev1")
		inventory.auths = []Credential{{Username: "user", Password: "secret"}}
		a := &authenticator{mapping: inventory, catalogue: inventory}
		header := http.Header{}
		header.Set("Origin", "dev1")
		header.Set("Authorization", basicAuth("user", "wrong"))
		_, ok := a.authenticate(header, "10.0.0.1:1")
		assert.False(t, ok)
	})
}

func TestCheckAuth(t *testing.T) {
	auths := []Credential{
		{Username: "alpha", Password: "one"},
		{Username: "beta", Password: "two"},
	}

	t.Run("matches any configured credential", func(t *testing.T) {
		assert.True(t, checkAuth(basicAuth("alpha", "one"), auths))
		assert.True(t, checkAuth(basicAuth("beta", "two"), auths))
	})

	t.Run("rejects non basic schemes", func(t *testing.T) {
		assert.False(t, checkAuth("Bearer token", auths))
	})

	t.Run("rejects invalid base64", func(t *testing.T) {
		assert.False(t, checkAuth("Basic $$$$", auths))
	})

	t.Run("rejects credentials without separator", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte("no-colon"))
		assert.False(t, checkAuth("Basic "+encoded, auths))
	})
}
