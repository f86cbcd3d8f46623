package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openclaw/console/internal/errors"
	"github.com/openclaw/console/internal/interfaces"
	"github.com/openclaw/console/internal/protocol"
)

// pendingResult carries one settlement: a response frame or a local failure
type pendingResult struct {
	frame *protocol.Frame
	err   error
}

// pendingRequest tracks an in-flight request. The result channel is buffered
// so whichever side settles first never blocks on delivery.
type pendingRequest struct {
	method    string
	result    chan pendingResult
	createdAt time.Time
}

// nextIDLocked mints a request identifier unique within this client
// (monotonic counter plus wall clock). Caller holds mu.
func (c *Client) nextIDLocked() string {
	c.reqCounter++
	return fmt.Sprintf("r%d_%d", c.reqCounter, time.Now().UnixNano())
}

// removePending claims the pending entry for id. It reports whether this
// caller won the claim; a false return means a concurrent settlement already
// owns the entry and its result is in the channel.
func (c *Client) removePending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

// takePendingLocked drains the pending map, returning the orphaned entries.
// Caller holds mu.
func (c *Client) takePendingLocked() []*pendingRequest {
	taken := make([]*pendingRequest, 0, len(c.pending))
	for _, pr := range c.pending {
		taken = append(taken, pr)
	}
	c.pending = make(map[string]*pendingRequest)
	return taken
}

// settle resolves the pending request matched by a response frame. A
// response with no waiting request is logged and dropped.
func (c *Client) settle(frame *protocol.Frame) {
	c.mu.Lock()
	pr, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Response for unknown request", "request_id", frame.ID)
		return
	}
	pr.result <- pendingResult{frame: frame}
}

// Request performs one request/response exchange over the gateway
// connection. It blocks until the matching response arrives, the request
// timeout elapses, or ctx is done; each outcome settles the request exactly
// once. The connect method alone may be sent before the connection is
// Connected, since it is what completes the handshake.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	start := time.Now()

	c.mu.Lock()
	if method == protocol.MethodConnect {
		if c.conn == nil {
			c.mu.Unlock()
			return nil, errors.NewNotConnectedError(component).WithOperation(method).Build()
		}
	} else if c.state != interfaces.StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil, errors.NewNotConnectedError(component).WithOperation(method).Build()
	}
	conn := c.conn
	timeout := c.cfg.RequestTimeout
	id := c.nextIDLocked()
	pr := &pendingRequest{
		method:    method,
		result:    make(chan pendingResult, 1),
		createdAt: start,
	}
	c.pending[id] = pr
	c.mu.Unlock()

	frame, err := protocol.NewRequest(id, method, params)
	if err != nil {
		c.removePending(id)
		return nil, errors.NewProtocolError(component).
			WithOperation(method).
			WithMessage("unencodable request params").
			WithCause(err).
			Build()
	}
	data, err := frame.Encode()
	if err != nil {
		c.removePending(id)
		return nil, errors.NewProtocolError(component).
			WithOperation(method).
			WithMessage("unencodable request frame").
			WithCause(err).
			Build()
	}
	if err := c.write(conn, data); err != nil {
		if c.removePending(id) {
			werr := errors.NewTransportError(component).
				WithOperation(method).
				WithMessage("write failed").
				WithCause(err).
				Build()
			c.logger.LogRequest(method, id, time.Since(start), werr)
			return nil, werr
		}
		// A settlement raced the write failure; honor it below.
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pr.result:
		return c.finishRequest(method, id, start, res)
	case <-timer.C:
		if c.removePending(id) {
			terr := errors.NewTimeoutError(component).WithOperation(method).Build()
			c.logger.LogRequest(method, id, time.Since(start), terr)
			return nil, terr
		}
		return c.finishRequest(method, id, start, <-pr.result)
	case <-ctx.Done():
		if c.removePending(id) {
			c.logger.LogRequest(method, id, time.Since(start), ctx.Err())
			return nil, ctx.Err()
		}
		return c.finishRequest(method, id, start, <-pr.result)
	}
}

// finishRequest converts a settlement into the caller-visible result
func (c *Client) finishRequest(method, id string, start time.Time, res pendingResult) (json.RawMessage, error) {
	if res.err != nil {
		c.logger.LogRequest(method, id, time.Since(start), res.err)
		return nil, res.err
	}
	if !res.frame.Ok() {
		rerr := errors.NewRemoteError(component).
			WithOperation(method).
			WithMessage(res.frame.ErrorMessage()).
			Build()
		c.logger.LogRequest(method, id, time.Since(start), rerr)
		return nil, rerr
	}
	c.logger.LogRequest(method, id, time.Since(start), nil)
	return res.frame.Payload, nil
}
