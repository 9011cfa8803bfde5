package registry

import "errors"

var (
	ErrUnknownDevice  = errors.New("registry: unknown device")
	ErrUnknownGroup   = errors.New("registry: unknown group")
	ErrNameRegistered = errors.New("registry: name already registered")
	ErrGroupExists    = errors.New("registry: group already exists")
	ErrEmptyName      = errors.New("registry: empty name")

	// ErrTransmit wraps a failed call to the transmitter. The device keeps
	// its previous state.
	ErrTransmit = errors.New("registry: transmit failed")

	// ErrNoStore is returned by Backup and Restore when no store was configured.
	ErrNoStore = errors.New("registry: no store configured")
)
