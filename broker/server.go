// Package broker implements a connection broker for fleets of mobile
// devices. It accepts persistent websocket connections, authenticates each
// device, pairs it with a worker that drives it, and multiplexes
// command/response traffic between the two. Admission of concurrent
// connects for the same device is serialized, reconnect races are
// coordinated, and worker lifecycles are owned end to end.
package broker

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/nelkinda/health-go"
	log "github.com/sirupsen/logrus"
)

// Server supervises every device connection: it accepts transports, runs
// them through admission, starts workers and tears everything down again on
// shutdown.
type Server struct {
	config    *Config
	mapping   DeviceMapping
	catalogue DeviceCatalogue
	factory   WorkerFactory

	auth     *authenticator
	registry *registry
	reaper   *reaper

	upgrader   websocket.Upgrader
	listener   net.Listener
	httpServer *http.Server

	stopping atomic.Bool
}

// NewServer creates a broker supervisor. The mapping and catalogue supply
// the device inventory, the factory builds workers for admitted devices.
func NewServer(config *Config, mapping DeviceMapping, catalogue DeviceCatalogue, factory WorkerFactory) *Server {
	return &Server{
		config:    config,
		mapping:   mapping,
		catalogue: catalogue,
		factory:   factory,
		auth:      &authenticator{mapping: mapping, catalogue: catalogue},
		registry:  newRegistry(),
		reaper:    newReaper(config.JoinTimeout),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// devices send their identity in the Origin header, this is not
			// a browser same-origin check
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start binds the listener and begins accepting device connections. It
// returns once the listener is bound; serving continues in the background
// until Stop.
func (s *Server) Start() error {
	log.WithField("endpoint", s.config.Endpoint()).Info("starting device broker")

	listener, err := net.Listen("tcp", s.config.Endpoint())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBindFailed, s.config.Endpoint(), err)
	}
	s.listener = listener

	h := health.New(
		health.Health{
			Version:   "1",
			ReleaseID: "1.0.0-SNAPSHOT",
		},
	)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.Handler).Methods(http.MethodGet)
	router.PathPrefix("/").HandlerFunc(s.handleUpgrade)
	s.httpServer = &http.Server{Handler: router}

	go s.reaper.run()
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("listener terminated")
		}
	}()

	log.WithField("endpoint", s.config.Endpoint()).Info("device broker is active")
	return nil
}

// Stop shuts the broker down: new transports are refused, in-flight
// admissions drain, every worker is stopped and every transport closed, and
// the join queue empties before the listener goes away.
func (s *Server) Stop() error {
	log.Info("trying to stop device broker")
	s.stopping.Store(true)

	// admissions are short-lived, poll them out with a bound
	deadline := time.Now().Add(s.config.DrainTimeout)
	for s.registry.connectingCount() > 0 && time.Now().Before(deadline) {
		log.Info("shutdown waiting for connecting devices")
		time.Sleep(time.Second)
	}

	log.Info("signaling all workers to stop")
	s.registry.each(func(entry *ClientEntry) {
		worker, task := entry.workerState()
		if worker != nil {
			worker.Stop()
		}
		if task != nil && task.alive() {
			s.reaper.enqueue(task)
		}
		if transport := entry.Transport(); transport != nil {
			_ = transport.Close()
		}
		entry.cancelPending(ErrConnectionGone)
	})
	log.Info("done signaling all workers to stop")

	log.Info("waiting for join queue to be emptied")
	s.reaper.stop()
	s.reaper.drain()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Close()
	}
	s.registry.clear()

	log.Info("stopped device broker")
	return err
}

// handleUpgrade upgrades an HTTP request to a websocket and hands it to the
// connection handler.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.stopping.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithField("remote", r.RemoteAddr).Warn("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(s.config.MaxFrameSize)

	s.handleConnection(newWSTransport(conn, s.config.CloseTimeout), r.Header)
}

// handleConnection is the admission state machine. It authenticates the
// transport, serializes admission per origin, applies the reconnect rules,
// starts the worker and pumps frames until the transport dies, then routes
// through cleanup so the worker is always reaped.
func (s *Server) handleConnection(transport Transport, header http.Header) {
	if s.stopping.Load() {
		_ = transport.Close()
		return
	}

	origin, ok := s.auth.authenticate(header, transport.RemoteAddr())
	if !ok {
		_ = transport.Close()
		return
	}

	logger := log.WithFields(log.Fields{
		"origin": origin,
		"remote": transport.RemoteAddr(),
		"conn":   uuid.NewString()[:8],
	})
	logger.Info("new connection")
	if s.config.ConfigMode {
		logger.Warn("connected in configmode, no mapping will occur")
	}

	if !s.registry.beginAdmission(origin) {
		logger.WithError(ErrAlreadyConnecting).Info("dropping connection")
		_ = transport.Close()
		return
	}

	entry, proceed := s.admit(origin, transport, logger)
	if !proceed {
		// spread retries so rejected clients do not reconnect in sync
		time.Sleep(s.backoffDelay())
		s.registry.endAdmission(origin)
		logger.WithError(ErrRegistrationDenied).Info("done with connection, not allowing register")
		_ = transport.Close()
		return
	}

	entry.startWorker()
	s.registry.endAdmission(origin)

	s.receiveLoop(entry, transport, logger)

	// cleanup: only the connection that still owns the entry's transport may
	// stop the worker; otherwise a newer connection has taken over.
	if entry.Transport() == transport {
		logger.Debug("stopping worker, connection done")
		worker, task := entry.workerState()
		if worker != nil {
			worker.Stop()
		}
		if task != nil {
			s.reaper.enqueue(task)
		}
		entry.cancelPending(ErrConnectionGone)
	} else {
		logger.Warn("not stopping worker, a newer connection took over")
	}
	logger.Info("done with connection")
}

// admit applies the reconnect rules under the entry-table lock and
// publishes the entry with the new transport installed when the connection
// may proceed.
func (s *Server) admit(origin string, transport Transport, logger *log.Entry) (*ClientEntry, bool) {
	var admitted *ClientEntry

	s.registry.withEntry(origin, func(existing *ClientEntry) *ClientEntry {
		configMode := s.cfgModeFor(origin, logger)

		var entry *ClientEntry
		switch {
		case existing == nil || configMode:
			entry = existing
			if entry == nil {
				logger.Info("need to start a new worker")
				entry = newClientEntry(origin)
			}
			if !s.buildWorker(entry, origin, configMode, logger) {
				return nil
			}

		case existing.Transport() != nil && existing.Transport().IsOpen():
			logger.Error("old connection still open while a new one is attempted, aborting")
			return nil

		default:
			worker, task := existing.workerState()
			switch {
			case task != nil && task.alive() && worker != nil && !worker.IsStopping():
				// Letting the new connection take over here would race with a
				// worker that is shutting itself down right now. Refuse until
				// the old connection is found dead and the worker stopped.
				logger.Info("worker still alive, rejecting until old connection dies")
				return nil
			case task != nil && task.alive():
				logger.Info("worker is about to stop, wait a little and reconnect")
				return nil
			default:
				logger.Info("old worker is dead, building a new one")
				if !s.buildWorker(existing, origin, configMode, logger) {
					return nil
				}
				entry = existing
			}
		}

		entry.ReplaceTransport(transport)
		admitted = entry
		return entry
	})

	return admitted, admitted != nil
}

// cfgModeFor resolves the effective worker mode for an admission: the
// broker-wide configmode flag, or a fallback for devices paused in the
// catalogue.
func (s *Server) cfgModeFor(origin string, logger *log.Entry) bool {
	if s.config.ConfigMode {
		return true
	}
	if record, exists := s.catalogue.Find(origin); exists && !s.catalogue.IsActive(record.ID) {
		logger.Warn("origin is currently paused, unpause to begin working")
		return true
	}
	return false
}

// buildWorker asks the factory for a worker and installs it with a fresh
// task handle. A previous task still alive is stopped and handed to the
// reaper.
func (s *Server) buildWorker(entry *ClientEntry, origin string, configMode bool, logger *log.Entry) bool {
	communicator := NewCommunicator(entry, origin, s.config.CommandTimeout)
	worker, err := s.factory.WorkerFor(origin, configMode, communicator)
	if err != nil {
		logger.WithError(err).Warn("factory could not build worker")
		return false
	}
	if worker == nil {
		logger.WithError(ErrNoWorker).Warn("factory declined to build worker")
		return false
	}

	previous := entry.setWorker(worker, newWorkerTask(origin, worker))
	if previous != nil && previous.alive() {
		previous.worker.Stop()
		s.reaper.enqueue(previous)
	}
	return true
}

func (s *Server) backoffDelay() time.Duration {
	spread := s.config.BackoffMax - s.config.BackoffMin
	if spread <= 0 {
		return s.config.BackoffMin
	}
	return s.config.BackoffMin + time.Duration(rand.Int63n(int64(spread)))
}

// ConnectedOrigins returns the origins whose current transport is open.
func (s *Server) ConnectedOrigins() []string {
	return s.registry.connectedOrigins()
}

// CommunicatorFor returns the communicator bound to origin's worker, nil
// when the origin is unknown or has no worker.
func (s *Server) CommunicatorFor(origin string) Communicator {
	entry := s.registry.get(origin)
	if entry == nil {
		return nil
	}
	worker := entry.Worker()
	if worker == nil {
		return nil
	}
	return worker.Communicator()
}

// SetGeofixSleeptime forwards a new location-update pace to origin's
// worker; false when origin or worker is absent.
func (s *Server) SetGeofixSleeptime(origin string, seconds int) bool {
	entry := s.registry.get(origin)
	if entry == nil {
		return false
	}
	worker := entry.Worker()
	if worker == nil {
		return false
	}
	return worker.SetGeofixSleeptime(seconds)
}

// SetJobActivated flags origin's job device setting on.
func (s *Server) SetJobActivated(origin string) {
	s.mapping.SetDeviceSetting(origin, "job", true)
}

// SetJobDeactivated flags origin's job device setting off.
func (s *Server) SetJobDeactivated(origin string) {
	s.mapping.SetDeviceSetting(origin, "job", false)
}

// ForceDisconnect stops origin's worker and closes its transport
// synchronously. The receive loop observes the close and routes the task to
// the reaper through the regular cleanup path.
func (s *Server) ForceDisconnect(origin string) {
	logger := log.WithField("origin", origin)
	logger.Info("signaling to stop")

	entry := s.registry.get(origin)
	if entry == nil {
		logger.Warn("unable to signal stop, origin not present")
		return
	}
	if worker := entry.Worker(); worker != nil {
		worker.Stop()
	}
	if transport := entry.Transport(); transport != nil {
		_ = transport.Close()
	}
	logger.Info("done signaling stop")
}
