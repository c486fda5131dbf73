package fuerte

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"

	"github.com/0xflotus/fuerte-go/internal/bufpool"
	"github.com/0xflotus/fuerte-go/internal/wire"
)

// vstDriver implements driver for VelocyStream: full-duplex, chunked,
// many requests outstanding at once, correlated by message id (spec §4.5).
// Unlike HTTP's single reactor goroutine, VST needs two independent loops
// since read and write are no longer mutually exclusive — the idiomatic Go
// translation of the spec's note that a full-duplex protocol needs its own
// read and write loops rather than one alternating loop.
type vstDriver struct {
	version wire.Version
	chunks  *bufpool.Pool
}

func newVSTConnection(config ConnectionConfiguration) *Connection {
	v := wire.V11
	if config.VSTVersion == VST1_0 {
		v = wire.V10
	}
	c := newConnection(config)
	c.drv = &vstDriver{version: v, chunks: bufpool.New(int(config.MaxChunkSize))}
	return c
}

func (d *vstDriver) finishInitialization(c *Connection) {
	c.netConnMu.Lock()
	conn := c.netConn
	c.netConnMu.Unlock()

	go d.writerLoop(c)

	if c.loop.tryStartReadLoop() {
		go d.readerLoop(c, conn)
	}

	if c.loop.queueCount() > 0 && c.loop.tryStartWriteLoop() {
		c.wakeWriter()
	}
}

func (d *vstDriver) submit(c *Connection, item *requestItem) (uint64, error) {
	id := c.nextID()
	item.request.MessageID = id

	header := encodeVSTRequestHeader(item.request)
	message := make([]byte, 0, len(header)+len(item.request.Payload))
	message = append(message, header...)
	message = append(message, item.request.Payload...)
	item.vstChunks = chunkMessage(d.version, c.config.MaxChunkSize, id, message)

	if !c.queue.push(item) {
		return 0, ErrQueueCapacityExceeded
	}
	c.loop.incQueueCount()

	if c.isConnected() && c.loop.tryStartWriteLoop() {
		c.wakeWriter()
	}
	return id, nil
}

func (d *vstDriver) requestsLeft(c *Connection) int {
	return c.store.size()
}

// writerLoop drains the write queue independently of reading; the write
// side of the full-duplex pair (spec §4.5).
func (d *vstDriver) writerLoop(c *Connection) {
	for {
		select {
		case <-c.shutdown:
			return
		case <-c.wake:
		}

		for {
			item, ok := c.queue.pop()
			if !ok {
				break
			}
			c.loop.decQueueCount()
			c.store.add(item)

			if err := d.writeItem(c, item); err != nil {
				werr := WrapError(VstWriteError, "vst write failed", err)
				c.store.removeByID(item.request.MessageID)
				item.fire(werr, nil)
				c.restartConnection(werr)
				return
			}
		}

		c.loop.stopWriteLoopIfEmpty()
	}
}

func (d *vstDriver) writeItem(c *Connection, item *requestItem) error {
	c.netConnMu.Lock()
	conn := c.netConn
	c.netConnMu.Unlock()
	if conn == nil {
		return io.ErrClosedPipe
	}

	buffers := make(net.Buffers, len(item.vstChunks))
	for i, chunk := range item.vstChunks {
		buffers[i] = chunk
	}
	_, err := buffers.WriteTo(conn)
	item.vstChunks = nil
	if err == nil {
		c.touchActivity()
	}
	return err
}

// readerLoop is the persistent read side of the full-duplex pair: it runs
// for the lifetime of one TCP connection, reassembling chunks by message id
// and dispatching completed responses (spec §4.5).
func (d *vstDriver) readerLoop(c *Connection, conn net.Conn) {
	// The read-active bit is cleared centrally by restartConnection/Close's
	// loop.reset() on the next teardown, not here: clearing it from this
	// goroutine on exit would race a reader already started for the next
	// connection generation by the time this one unwinds.
	reader := bufio.NewReaderSize(conn, 64*1024)

	for {
		select {
		case <-c.shutdown:
			return
		default:
		}

		chunk, err := d.readChunk(reader)
		if err != nil {
			rerr := WrapError(VstReadError, "vst read failed", err)
			c.restartConnection(rerr)
			return
		}
		c.touchActivity()

		hdr, hn, err := wire.DecodeChunkHeader(d.version, true, chunk)
		if err != nil {
			d.chunks.Put(chunk)
			rerr := WrapError(VstReadError, "vst chunk header decode failed", err)
			c.restartConnection(rerr)
			return
		}
		payload := chunk[hn:]

		item, ok := c.store.get(hdr.MessageID)
		if !ok {
			// Response for an id we no longer track (already canceled or
			// never ours); drop the chunk.
			d.chunks.Put(chunk)
			continue
		}

		if hdr.IsFirst {
			item.vstChunksWanted = int(hdr.ChunkXValue)
			item.vstChunksSeen = 0
			item.vstReassembly = item.vstReassembly[:0]
		}
		item.vstReassembly = append(item.vstReassembly, payload...)
		item.vstChunksSeen++
		d.chunks.Put(chunk)

		if item.vstChunksWanted == 0 || item.vstChunksSeen < item.vstChunksWanted {
			continue
		}

		c.store.removeByID(hdr.MessageID)
		statusCode, meta, respPayload, err := decodeVSTResponseHeader(item.vstReassembly)
		if err != nil {
			item.fire(WrapError(ProtocolError, "vst header decode failed", err), nil)
			continue
		}
		item.fire(nil, &Response{
			StatusCode: statusCode,
			Header:     meta,
			MessageID:  hdr.MessageID,
			Payload:    append([]byte(nil), respPayload...),
		})
	}
}

// readChunk reads one full chunk (header and payload) from r. It peeks the
// 8 bytes every chunk header starts with (length, chunkX) to learn the
// total on-wire length, then reads exactly that many bytes.
func (d *vstDriver) readChunk(r *bufio.Reader) ([]byte, error) {
	head, err := r.Peek(8)
	if err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(head[0:4])

	buf := d.chunks.Get(int(length))
	if _, err := io.ReadFull(r, buf); err != nil {
		d.chunks.Put(buf)
		return nil, err
	}
	return buf, nil
}

// chunkMessage splits a fully-serialized VST message (header + payload)
// into on-wire chunks no larger than maxChunkSize, per spec §4.5.
func chunkMessage(v wire.Version, maxChunkSize uint32, messageID uint64, data []byte) [][]byte {
	if maxChunkSize == 0 {
		maxChunkSize = defaultMaxChunkSize
	}
	firstCap := int(maxChunkSize) - wire.HeaderSize(v, true)
	restCap := int(maxChunkSize) - wire.HeaderSize(v, false)
	if firstCap <= 0 {
		firstCap = 1
	}
	if restCap <= 0 {
		restCap = 1
	}

	var slices [][]byte
	offset := 0
	budget := firstCap
	for {
		n := len(data) - offset
		if n > budget {
			n = budget
		}
		slices = append(slices, data[offset:offset+n])
		offset += n
		budget = restCap
		if offset >= len(data) {
			break
		}
	}
	if len(slices) == 0 {
		slices = [][]byte{{}}
	}

	total := len(slices)
	chunks := make([][]byte, total)
	for i, payload := range slices {
		isFirst := i == 0
		h := wire.ChunkHeader{IsFirst: isFirst, MessageID: messageID}
		if isFirst {
			h.ChunkXValue = uint32(total)
			h.MessageLength = uint64(len(data))
		} else {
			h.ChunkXValue = uint32(i)
		}
		chunks[i] = wire.EncodeChunk(v, h, payload)
	}
	return chunks
}
