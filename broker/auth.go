package broker

import (
	"encoding/base64"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// authenticator extracts and validates device identity from handshake
// metadata. It never mutates broker state; rejected connections leave no
// trace beyond a log line.
type authenticator struct {
	mapping   DeviceMapping
	catalogue DeviceCatalogue
}

// authenticate resolves the device origin and decides whether the handshake
// is acceptable. The returned origin may be non-empty even on rejection so
// the caller can log it.
func (a *authenticator) authenticate(header http.Header, remote string) (string, bool) {
	origin := header.Get("Origin")
	if origin == "" {
		log.WithField("remote", remote).Warn("client tried to connect without Origin header")
		return "", false
	}

	logger := log.WithFields(log.Fields{"origin": origin, "remote": remote})
	logger.Info("client registering")

	if a.mapping == nil {
		logger.Warn("no device configuration has been loaded, rejecting")
		return origin, false
	}

	if !contains(a.mapping.KnownDevices(), origin) {
		if _, exists := a.catalogue.Find(origin); exists {
			logger.Warn("device is created but not loaded, apply settings to update")
		} else {
			logger.Warn("register attempt of unknown origin")
		}
		return origin, false
	}

	auths := a.mapping.Auths()
	if len(auths) == 0 {
		return origin, true
	}

	authHeader := header.Get("Authorization")
	if authHeader == "" {
		logger.Warn("client tried to connect without auth header")
		return origin, false
	}
	if !checkAuth(authHeader, auths) {
		logger.Warn("client sent invalid credentials")
		return origin, false
	}

	return origin, true
}

// checkAuth validates a basic Authorization header value against the
// configured credentials.
func checkAuth(header string, auths []Credential) bool {
	encoded, isBasic := strings.CutPrefix(header, "Basic ")
	if !isBasic {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return false
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return false
	}
	for _, auth := range auths {
		if auth.Username == username && auth.Password == password {
			return true
		}
	}
	return false
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
