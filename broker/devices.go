package broker

// Credential is one basic-auth credential accepted at the handshake.
type Credential struct {
	Username string
	Password string
}

// DeviceRecord is the catalogue's view of a single device.
type DeviceRecord struct {
	ID     int
	Origin string
}

// DeviceMapping supplies the device and auth inventory the broker admits
// against, plus write access to per-device settings.
type DeviceMapping interface {
	// KnownDevices returns the origins with loaded settings.
	KnownDevices() []string

	// Auths returns the configured credentials; empty disables auth checks.
	Auths() []Credential

	// SetDeviceSetting updates a per-device setting value.
	SetDeviceSetting(origin, name string, value interface{})
}

// DeviceCatalogue resolves device records and their activation state.
type DeviceCatalogue interface {
	// Find returns the record for origin, false when the device does not
	// exist at all.
	Find(origin string) (DeviceRecord, bool)

	// IsActive reports whether the device is currently unpaused.
	IsActive(deviceID int) bool
}
