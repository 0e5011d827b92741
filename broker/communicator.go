package broker

import "time"

// Communicator is the entry-bound adapter a worker uses to issue commands
// to its device and await the replies. It carries no reference back to the
// worker; correlation happens entirely over the entry's pending-response
// table.
type Communicator interface {
	// Origin returns the device identity this communicator speaks to.
	Origin() string

	// SendCommand writes a text command and blocks for the response, bounded
	// by the command timeout.
	SendCommand(command string) (string, error)

	// SendBinary writes a binary payload and blocks for the response.
	SendBinary(payload []byte) ([]byte, error)
}

type entryCommunicator struct {
	entry   *ClientEntry
	origin  string
	timeout time.Duration
}

// NewCommunicator binds a communicator to an entry with the given command
// timeout.
func NewCommunicator(entry *ClientEntry, origin string, commandTimeout time.Duration) Communicator {
	return &entryCommunicator{
		entry:   entry,
		origin:  origin,
		timeout: commandTimeout,
	}
}

func (c *entryCommunicator) Origin() string {
	return c.origin
}

func (c *entryCommunicator) SendCommand(command string) (string, error) {
	payload, err := c.entry.SendRequest([]byte(command), false, c.timeout)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func (c *entryCommunicator) SendBinary(payload []byte) ([]byte, error) {
	return c.entry.SendRequest(payload, true, c.timeout)
}
