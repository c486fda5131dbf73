package fuerte

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// httpDriver implements driver for HTTP/1.1: half-duplex, one outstanding
// request at a time (spec §4.4). The response parser is delegated to
// stdlib net/http — spec §1 treats "HTTP parser as an algorithm" as an
// external collaborator, and net/http.ReadResponse is that collaborator,
// exactly the way the teacher delegates meta-protocol framing to its own
// meta package rather than hand-rolling it inline.
type httpDriver struct {
	reader *bufio.Reader
}

func newHTTPConnection(config ConnectionConfiguration) *Connection {
	c := newConnection(config)
	c.drv = &httpDriver{}
	return c
}

func (d *httpDriver) finishInitialization(c *Connection) {
	c.netConnMu.Lock()
	conn := c.netConn
	c.netConnMu.Unlock()
	d.reader = bufio.NewReaderSize(conn, 32*1024)

	go d.reactorLoop(c)

	// Kick the write loop in case requests were queued before we connected.
	if c.loop.queueCount() > 0 {
		c.wakeWriter()
	}
}

func (c *Connection) wakeWriter() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (d *httpDriver) submit(c *Connection, item *requestItem) (uint64, error) {
	id := c.nextID()
	item.request.MessageID = id

	item.httpHeader = buildHTTPHeader(c.config, item.request)

	if !c.queue.push(item) {
		return 0, ErrQueueCapacityExceeded
	}
	c.loop.incQueueCount()

	if c.isConnected() && c.loop.tryStartWriteLoop() {
		c.wakeWriter()
	}
	return id, nil
}

func (d *httpDriver) requestsLeft(c *Connection) int {
	return c.store.size()
}

// reactorLoop is the HTTP half-duplex reactor: the single goroutine that
// owns the socket, the parser, and the message store for this connection,
// per spec §4.1's "I/O reactor is sole mutator" invariant.
func (d *httpDriver) reactorLoop(c *Connection) {
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
				c.store.removeByID(item.request.MessageID)
				item.fire(WrapError(WriteError, "http write failed", err), nil)
				c.restartConnection(WrapError(WriteError, "http write failed", err))
				return
			}

			resp, err := d.readResponse(c, item)
			c.store.removeByID(item.request.MessageID)
			if err != nil {
				item.fire(err, nil)
				c.restartConnection(err)
				return
			}
			item.fire(nil, resp)
		}

		c.loop.stopWriteLoopIfEmpty()
	}
}

func (d *httpDriver) writeItem(c *Connection, item *requestItem) error {
	c.netConnMu.Lock()
	conn := c.netConn
	c.netConnMu.Unlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	buffers := net.Buffers{[]byte(item.httpHeader)}
	if len(item.request.Payload) > 0 {
		buffers = append(buffers, item.request.Payload)
	}
	_, err := buffers.WriteTo(conn)
	item.httpHeader = "" // spec §4.4 "Write completion: On success... clear the header string"
	if err == nil {
		c.touchActivity()
	}
	return err
}

func (d *httpDriver) readResponse(c *Connection, item *requestItem) (*Response, error) {
	httpReq, _ := http.NewRequest(item.request.Verb.String(), item.request.Path, nil)
	rawResp, err := http.ReadResponse(d.reader, httpReq)
	if err != nil {
		return nil, WrapError(ReadError, "http read failed", err)
	}
	defer rawResp.Body.Close()

	if rawResp.StatusCode == http.StatusSwitchingProtocols {
		// Protocol upgrades are refused (spec §6).
		return nil, NewError(ProtocolError, "server attempted a protocol upgrade")
	}

	body, err := readAllBody(rawResp)
	if err != nil {
		return nil, WrapError(ProtocolError, "http body read failed", err)
	}
	c.touchActivity()

	meta := make(map[string]string, len(rawResp.Header))
	for k, v := range rawResp.Header {
		if len(v) > 0 {
			// Duplicated header names: keep the last value only, matching
			// the teacher's streaming-parser flip-flop semantics of
			// "field after value flushes the previous pair" (spec §4.4,
			// §8 boundary behavior).
			meta[k] = v[len(v)-1]
		}
	}

	return &Response{
		StatusCode:  rawResp.StatusCode,
		Header:      meta,
		ContentType: rawResp.Header.Get("Content-Type"),
		MessageID:   item.request.MessageID,
		Payload:     body,
	}, nil
}

func readAllBody(resp *http.Response) ([]byte, error) {
	const chunk = 32 * 1024
	buf := make([]byte, 0, chunk)
	tmp := make([]byte, chunk)
	for {
		n, err := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, nil
			}
			return buf, err
		}
	}
}

// buildHTTPHeader serializes the request line and headers exactly per
// spec §4.4, returning the string ready to be written verbatim ahead of
// the payload bytes.
func buildHTTPHeader(config ConnectionConfiguration, req *Request) string {
	var b strings.Builder

	target := buildTarget(req)
	b.WriteString(req.Verb.String())
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteString(" HTTP/1.1\r\n")

	b.WriteString("Host: ")
	b.WriteString(config.Host)
	b.WriteString("\r\n")
	b.WriteString("Connection: Keep-Alive\r\n")

	for name, value := range req.Header {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	if req.ContentType != "" {
		b.WriteString("Content-Type: ")
		b.WriteString(req.ContentType)
		b.WriteString("\r\n")
	}

	switch config.AuthenticationType {
	case AuthBasic:
		token := base64.StdEncoding.EncodeToString([]byte(config.User + ":" + config.Password))
		b.WriteString("Authorization: Basic ")
		b.WriteString(token)
		b.WriteString("\r\n")
	case AuthJWT:
		b.WriteString("Authorization: bearer ")
		b.WriteString(config.JWTToken)
		b.WriteString("\r\n")
	}

	if req.Verb != Get {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.Itoa(len(req.Payload)))
		b.WriteString("\r\n")
	}

	b.WriteString("\r\n")
	return b.String()
}

// percentEncode is the one escaping rule buildTarget uses everywhere it
// needs to percent-encode a component: true %XX encoding throughout,
// including the space character (%20), unlike url.QueryEscape's form
// encoding (space as '+'). Built on url.QueryEscape, which already escapes
// every character a query component must not contain verbatim (including
// '&' and '='); only the '+' it produces for space is replaced.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// buildTarget builds "/_db/<urlEncode(db)>" + path + "?k1=v1&k2=v2" per
// spec §4.4, preserving query parameter order and duplicates.
func buildTarget(req *Request) string {
	var b strings.Builder
	if req.Database != "" {
		b.WriteString("/_db/")
		b.WriteString(percentEncode(req.Database))
	}
	b.WriteString(req.Path)

	if len(req.Parameters) > 0 {
		b.WriteByte('?')
		for i, p := range req.Parameters {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(percentEncode(p.Key))
			b.WriteByte('=')
			b.WriteString(percentEncode(p.Value))
		}
	}
	return b.String()
}
