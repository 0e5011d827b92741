package broker

import "time"

const (
	// DefaultMaxFrameSize bounds a single inbound frame. Devices upload
	// screenshots over the same channel, so the cap is generous.
	DefaultMaxFrameSize = 1 << 25 // 32 MiB

	// DefaultCloseTimeout is how long a close handshake may take before the
	// transport is torn down regardless.
	DefaultCloseTimeout = 10 * time.Second

	// DefaultCommandTimeout is the time a worker waits for a device to
	// answer a single command.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultReadTimeout is the per-read deadline of the receive loop. Short
	// enough to keep the loop responsive to cancellation.
	DefaultReadTimeout = 4 * time.Second

	// DefaultJoinTimeout bounds a single attempt to join a stopped worker.
	DefaultJoinTimeout = 10 * time.Second

	// DefaultBackoffMin and DefaultBackoffMax bound the random delay served
	// to rejected clients so their retries spread out.
	DefaultBackoffMin = 3 * time.Second
	DefaultBackoffMax = 15 * time.Second

	// DefaultDrainTimeout caps the shutdown wait for in-flight admissions.
	DefaultDrainTimeout = 30 * time.Second

	// receiveYield is the pause after an idle read cycle.
	receiveYield = 20 * time.Millisecond

	// reaperIdlePoll is how often the reaper re-checks its queue and the
	// shutdown flag when there is nothing to join.
	reaperIdlePoll = time.Second

	// reaperQueueSize bounds requeued worker handles; generous so enqueue
	// never blocks the connection handler.
	reaperQueueSize = 1024
)
