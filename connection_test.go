package fuerte

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeDriver lets tests exercise Connection's shared logic (message store,
// permanent-failure gating, Close/drain) without a real socket.
type fakeDriver struct {
	submitted []*requestItem
	notify    chan *requestItem
}

func (d *fakeDriver) finishInitialization(c *Connection) {}

func (d *fakeDriver) submit(c *Connection, item *requestItem) (uint64, error) {
	id := c.nextID()
	item.request.MessageID = id
	c.store.add(item)
	d.submitted = append(d.submitted, item)
	if d.notify != nil {
		d.notify <- item
	}
	return id, nil
}

func (d *fakeDriver) requestsLeft(c *Connection) int {
	return c.store.size()
}

func newFakeConnection() (*Connection, *fakeDriver) {
	c := newConnection(ConnectionConfiguration{
		Host:                 "localhost",
		Port:                 "8529",
		MaxReconnectFailures: defaultMaxReconnectFailures,
		WriteQueueCapacity:   defaultWriteQueueCapacity,
	})
	d := &fakeDriver{}
	c.drv = d
	return c, d
}

func TestConnection_SendRequest_AssignsIncreasingIDs(t *testing.T) {
	c, _ := newFakeConnection()
	id1, err := c.SendRequest(NewRequest(Get, "/a"), nil)
	require.NoError(t, err)
	id2, err := c.SendRequest(NewRequest(Get, "/b"), nil)
	require.NoError(t, err)
	require.Greater(t, id2, id1)
}

func TestConnection_RequestsLeft(t *testing.T) {
	c, _ := newFakeConnection()
	c.SendRequest(NewRequest(Get, "/a"), nil)
	c.SendRequest(NewRequest(Get, "/b"), nil)
	require.Equal(t, 2, c.RequestsLeft())
}

func TestConnection_Close_DrainsAndCancelsInFlight(t *testing.T) {
	c, _ := newFakeConnection()
	var gotErr error
	c.SendRequest(NewRequest(Get, "/a"), func(err error, _ *Request, _ *Response) {
		gotErr = err
	})

	drained, err := c.Close()
	require.NoError(t, err)
	require.Equal(t, 1, drained)
	require.Error(t, gotErr)
	require.Equal(t, 0, c.RequestsLeft())
}

func TestConnection_SendRequest_FailsAfterPermanentFailure(t *testing.T) {
	c, _ := newFakeConnection()
	c.permanentFailure.Store(true)

	_, err := c.SendRequest(NewRequest(Get, "/a"), nil)
	require.ErrorIs(t, err, ErrConnectionPermanentlyFailed)
}

func TestConnection_SendRequestSync_ReceivesResponse(t *testing.T) {
	c, d := newFakeConnection()
	d.notify = make(chan *requestItem, 1)

	done := make(chan struct{})
	go func() {
		resp, err := c.SendRequestSync(NewRequest(Get, "/a"))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		close(done)
	}()

	// Fire the callback the way a reactor loop would on completion, as soon
	// as the fake driver has recorded the submission.
	item := <-d.notify
	item.fire(nil, &Response{StatusCode: 200})
	<-done
}

// TestConnection_Close_FiresCallbacksStillInWriteQueue reproduces spec §8
// scenario 4: items pushed to the write queue but not yet popped into the
// message store (the reactor never got to them) must still have their
// callback fire exactly once when the connection is torn down.
func TestConnection_Close_FiresCallbacksStillInWriteQueue(t *testing.T) {
	c := newConnection(ConnectionConfiguration{
		Host:                 "localhost",
		Port:                 "8529",
		MaxReconnectFailures: defaultMaxReconnectFailures,
		WriteQueueCapacity:   defaultWriteQueueCapacity,
	})

	const n = 10
	fired := make([]bool, n)
	for i := 0; i < n; i++ {
		i := i
		item := newRequestItem(NewRequest(Get, "/a"), func(err error, _ *Request, _ *Response) {
			require.Error(t, err)
			fired[i] = true
		})
		// Simulate submit() having pushed the item onto the write queue
		// without the reactor having popped it into the store yet.
		require.True(t, c.queue.push(item))
	}

	drained, err := c.Close()
	require.NoError(t, err)
	require.Equal(t, n, drained)
	for i, f := range fired {
		require.True(t, f, "callback %d never fired", i)
	}
}

// TestConnection_RestartConnection_FiresCallbacksStillInWriteQueue covers
// the same scenario for a mid-life reconnect, not just shutdown.
func TestConnection_RestartConnection_FiresCallbacksStillInWriteQueue(t *testing.T) {
	c := newConnection(ConnectionConfiguration{
		Host:                 "localhost",
		Port:                 "8529",
		MaxReconnectFailures: defaultMaxReconnectFailures,
		WriteQueueCapacity:   defaultWriteQueueCapacity,
	})
	c.drv = &fakeDriver{}
	close(c.shutdown) // make restartConnection return without spawning a reconnect attempt

	var gotErr error
	item := newRequestItem(NewRequest(Get, "/a"), func(err error, _ *Request, _ *Response) {
		gotErr = err
	})
	require.True(t, c.queue.push(item))

	c.restartConnection(NewError(ReadError, "read failed"))
	require.Error(t, gotErr)
}

func TestConnection_Close_IsIdempotent(t *testing.T) {
	c, _ := newFakeConnection()
	_, err1 := c.Close()
	_, err2 := c.Close()
	require.NoError(t, err1)
	require.NoError(t, err2)
}
