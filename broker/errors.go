package broker

import "errors"

// Broker errors surfaced to callers and workers.
var (
	// ErrResponseTimeout is returned by a pending response wait that ran out
	// of time before the device answered.
	ErrResponseTimeout = errors.New("timeout awaiting device response")

	// ErrConnectionGone is returned for requests issued against a transport
	// that closed, or for pending waits cancelled by a transport swap.
	ErrConnectionGone = errors.New("device connection gone")

	// ErrReadTimeout signals a single read deadline expiry; the receive loop
	// treats it as a yield point, not a failure.
	ErrReadTimeout = errors.New("read timed out")

	// ErrMalformedFrame is returned by the codec for frames that cannot be
	// split into a message id and payload.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrAlreadyConnecting signals a handshake for an origin that is still
	// inside the admission critical section of an earlier connect.
	ErrAlreadyConnecting = errors.New("client is already connecting")

	// ErrRegistrationDenied signals an admission the reconnect rules turned
	// down; the client is expected to back off and retry.
	ErrRegistrationDenied = errors.New("registration denied")

	// ErrNoWorker is returned when the factory declined to build a worker
	// for an admitted device.
	ErrNoWorker = errors.New("no worker available for device")

	// ErrOriginUnknown is returned for devices missing from the catalogue.
	ErrOriginUnknown = errors.New("unknown device origin")

	ErrAuthFailed   = errors.New("authentication failed")
	ErrShuttingDown = errors.New("broker is shutting down")
	ErrBindFailed   = errors.New("failed to bind listener")
)
