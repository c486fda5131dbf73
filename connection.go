package fuerte

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/0xflotus/fuerte-go/internal/coarsetime"
)

// driver is the capability set spec §9 ("Dynamic dispatch over protocols")
// asks the HTTP and VST specializations to implement; Connection calls
// through this small interface instead of a tagged union, Go's equivalent
// of the vtable the note offers as an alternative to template
// monomorphization.
type driver interface {
	// finishInitialization runs once the socket (and TLS, if enabled) is
	// up. It marks the connection ready and starts whichever loops the
	// protocol needs.
	finishInitialization(c *Connection)

	// submit assigns a message id, serializes the request into the item's
	// scratch buffers, and enqueues it. Returns the assigned id or a
	// synchronous error (spec §7 "Submission-time failures").
	submit(c *Connection, item *requestItem) (uint64, error)

	// requestsLeft reports the number of not-yet-completed requests.
	requestsLeft(c *Connection) int
}

// Connection is the shared base spec §4.1 describes: it owns the socket,
// the loop state, the message store, the write queue, and the
// resolve/connect/TLS/shutdown lifecycle. HTTP and VST specialize it by
// supplying a driver.
type Connection struct {
	config ConnectionConfiguration
	drv    driver

	netConnMu sync.Mutex // guards netConn across shutdown vs. reactor use (spec §4.1 "Shutdown")
	netConn   net.Conn

	loop  loopState
	store *messageStore
	queue *writeQueue

	wake     chan struct{} // wakes the write reactor goroutine (buffered, size 1)
	shutdown chan struct{} // closed exactly once, by shutdownConnection

	connected        atomic.Bool
	permanentFailure atomic.Bool
	nextMessageID    atomic.Uint64

	shutdownOnce sync.Once

	reconnectBreaker *gobreaker.CircuitBreaker[struct{}]

	// lastActivity is updated with coarsetime.Now() on every successful read
	// or write; it is a coarse (50ms resolution) timestamp, cheap enough to
	// touch on every I/O without a syscall, carried from the teacher's
	// pool-idle bookkeeping (internal/coarsetime) and repurposed here for
	// connection idle tracking instead of pooled-connection idle tracking.
	lastActivity atomic.Value
}

func newConnection(config ConnectionConfiguration) *Connection {
	c := &Connection{
		config:   config,
		store:    newMessageStore(),
		queue:    newWriteQueue(config.WriteQueueCapacity),
		wake:     make(chan struct{}, 1),
		shutdown: make(chan struct{}),
	}
	c.reconnectBreaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        config.Host + ":" + config.Port,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxReconnectFailures
		},
	})
	return c
}

// start begins asynchronous host resolution and, on success, iterates
// through connect/TLS/finishInitialization (spec §4.1). It is called once,
// from ConnectionBuilder.Connect.
func (c *Connection) start() {
	go c.connectLoop()
}

// connectLoop runs resolve→dial→(TLS)→finishInitialization, retrying
// through restartConnection's reconnect state machine on failure. It is the
// reactor's bootstrap goroutine; once connected, protocol-specific loops
// (spawned by finishInitialization) take over as the reactor.
func (c *Connection) connectLoop() {
	c.attemptConnect()
}

func (c *Connection) attemptConnect() {
	select {
	case <-c.shutdown:
		return
	default:
	}

	_, err := c.reconnectBreaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.dialAndHandshake()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.permanentFailure.Store(true)
			c.notifyFailure(ConnectionError, "reconnect circuit breaker open: "+permanentFailureMessage)
			c.cancelQueued(ErrConnectionPermanentlyFailed)
			c.store.cancelAll(ErrConnectionPermanentlyFailed)
			return
		}

		var ferr *Error
		cond := ConnectionError
		if errors.As(err, &ferr) {
			cond = ferr.Condition
		}
		c.notifyFailure(cond, err.Error())
		c.restartConnection(WrapError(cond, "connection failed", err))
		return
	}

	c.connected.Store(true)
	c.drv.finishInitialization(c)
}

// dialAndHandshake resolves the host, connects, and performs the TLS
// handshake if configured, all bounded by ConnectTimeout (spec §9's open
// question on connect timeouts, resolved per SPEC_FULL §5).
func (c *Connection) dialAndHandshake() error {
	timeout := c.config.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	addr := net.JoinHostPort(c.config.Host, c.config.Port)

	var (
		conn net.Conn
		err  error
	)
	if c.config.UseTLS {
		tlsConfig := c.config.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		if tlsConfig.ServerName == "" {
			tlsConfig = tlsConfig.Clone()
			tlsConfig.ServerName = c.config.Host
		}
		dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return WrapError(CouldNotConnect, "dial failed", err)
	}

	c.netConnMu.Lock()
	c.netConn = conn
	c.netConnMu.Unlock()
	return nil
}

func (c *Connection) notifyFailure(cond ErrorCondition, message string) {
	if c.config.OnFailure != nil {
		c.config.OnFailure(cond, message)
	}
}

// cancelQueued fires every item still sitting in the write queue that the
// reactor has not yet popped into the message store. A requestItem moves
// from queue to store exactly once (the reactor's pop is also the channel
// receive), so draining here and calling store.cancelAll afterward never
// double-fires the same item. Without this, an item submitted just before
// Close/restartConnection would never reach the store and its callback
// would never fire (spec §3 "fires exactly once", §8 scenario 4).
func (c *Connection) cancelQueued(err error) int {
	queued := c.queue.drain()
	for _, item := range queued {
		item.fire(err, nil)
	}
	return len(queued)
}

// restartConnection tears the socket down and, unless a permanent failure
// has been declared, restarts from resolution (spec §4.1 "Reconnect").
// Called by a driver's reactor loop when a read or write fails.
func (c *Connection) restartConnection(err error) {
	c.connected.Store(false)
	c.loop.reset()

	c.netConnMu.Lock()
	if c.netConn != nil {
		c.netConn.Close()
		c.netConn = nil
	}
	c.netConnMu.Unlock()

	c.cancelQueued(err)
	c.store.cancelAll(err)

	select {
	case <-c.shutdown:
		return
	default:
	}

	var ferr *Error
	if errors.As(err, &ferr) && ferr.permanent() {
		c.permanentFailure.Store(true)
	}
	if c.permanentFailure.Load() {
		return
	}

	go c.attemptConnect()
}

// Close implements shutdownConnection (spec §4.1): it marks the connection
// down, clears loop state, closes the socket under the mutex, and cancels
// every item, both already in the message store and still waiting in the
// write queue. It returns how many items were force-failed this way,
// letting a caller log it externally (spec §1: logging stays out of fuerte
// itself; SPEC_FULL §5 "destructor-time drain" supplement).
func (c *Connection) Close() (drained int, err error) {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
	})

	c.connected.Store(false)
	c.loop.reset()

	c.netConnMu.Lock()
	if c.netConn != nil {
		err = c.netConn.Close()
		c.netConn = nil
	}
	c.netConnMu.Unlock()

	closedErr := NewError(Canceled, "connection closed")
	drained = c.cancelQueued(closedErr)
	drained += c.store.size()
	c.store.cancelAll(closedErr)
	return drained, err
}

// RequestsLeft returns the number of requests submitted but not yet
// completed (spec §6).
func (c *Connection) RequestsLeft() int {
	return c.drv.requestsLeft(c)
}

// SendRequest is the asynchronous form (spec §4.7, §6): it assigns a
// message id, enqueues the request, and returns immediately. The callback
// fires exactly once.
func (c *Connection) SendRequest(req *Request, cb RequestCallback) (uint64, error) {
	if c.permanentFailure.Load() {
		return 0, ErrConnectionPermanentlyFailed
	}
	item := newRequestItem(req, cb)
	return c.drv.submit(c, item)
}

// SendRequestSync is the blocking façade (spec §4.7): it installs a
// one-shot callback, waits for it, and returns the response or a typed
// error.
func (c *Connection) SendRequestSync(req *Request) (*Response, error) {
	var (
		wg   sync.WaitGroup
		resp *Response
		rerr error
	)
	wg.Add(1)
	_, err := c.SendRequest(req, func(err error, _ *Request, r *Response) {
		resp, rerr = r, err
		wg.Done()
	})
	if err != nil {
		return nil, err
	}
	wg.Wait()
	if rerr != nil {
		return nil, rerr
	}
	return resp, nil
}

func (c *Connection) nextID() uint64 {
	return c.nextMessageID.Add(1)
}

func (c *Connection) isConnected() bool {
	return c.connected.Load()
}

// touchActivity records the coarse time of the most recent successful I/O.
func (c *Connection) touchActivity() {
	c.lastActivity.Store(coarsetime.Now())
}

// LastActivity reports when this connection last completed a read or write,
// or the zero time if it never has.
func (c *Connection) LastActivity() time.Time {
	if v := c.lastActivity.Load(); v != nil {
		return v.(time.Time)
	}
	return time.Time{}
}
