// Package mapping supplies the config-backed device inventory consumed by
// the broker: which origins are loaded, which credentials are accepted, and
// per-device settings.
package mapping

import (
	"sort"
	"sync"

	"github.com/geoffjay/drover/broker"
	"github.com/geoffjay/drover/config"

	log "github.com/sirupsen/logrus"
)

// Static is an in-memory device inventory built from service configuration.
// It implements both broker.DeviceMapping and broker.DeviceCatalogue.
type Static struct {
	mu       sync.RWMutex
	records  map[string]broker.DeviceRecord
	active   map[int]bool
	auths    []broker.Credential
	settings map[string]map[string]interface{}
}

// NewStatic builds the inventory from config entries. Device ids are
// assigned in input order.
func NewStatic(devices []config.DeviceConfig, auths []config.AuthConfig) *Static {
	s := &Static{
		records:  make(map[string]broker.DeviceRecord),
		active:   make(map[int]bool),
		settings: make(map[string]map[string]interface{}),
	}
	for i, device := range devices {
		id := i + 1
		s.records[device.Origin] = broker.DeviceRecord{ID: id, Origin: device.Origin}
		s.active[id] = device.Active
		s.settings[device.Origin] = make(map[string]interface{})
	}
	for _, auth := range auths {
		s.auths = append(s.auths, broker.Credential{
			Username: auth.Username,
			Password: auth.Password,
		})
	}
	return s
}

// KnownDevices lists the loaded origins in stable order.
func (s *Static) KnownDevices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	origins := make([]string, 0, len(s.records))
	for origin := range s.records {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return origins
}

// Auths returns the configured credentials.
func (s *Static) Auths() []broker.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]broker.Credential(nil), s.auths...)
}

// SetDeviceSetting updates a per-device setting value. Unknown origins are
// logged and ignored.
func (s *Static) SetDeviceSetting(origin, name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, known := s.settings[origin]
	if !known {
		log.WithFields(log.Fields{
			"origin":  origin,
			"setting": name,
		}).Warn("refusing to set setting of unknown device")
		return
	}
	settings[name] = value
}

// DeviceSetting reads back a per-device setting value.
func (s *Static) DeviceSetting(origin, name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, known := s.settings[origin]
	if !known {
		return nil, false
	}
	value, set := settings[name]
	return value, set
}

// Find returns the record for origin.
func (s *Static) Find(origin string) (broker.DeviceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, exists := s.records[origin]
	return record, exists
}

// IsActive reports whether the device is unpaused.
func (s *Static) IsActive(deviceID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[deviceID]
}

// SetActive pauses or unpauses a device.
func (s *Static) SetActive(deviceID int, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[deviceID]; exists {
		s.active[deviceID] = active
	}
}
