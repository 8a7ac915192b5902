package connection

import "github.com/valyala/bytebufferpool"

// chunk is one pooled read's worth of bytes sitting in a ChunkChain. off is
// how many leading bytes of data have already been consumed.
type chunk struct {
	pooled *bytebufferpool.ByteBuffer
	off    int
	next   *chunk
}

func (c *chunk) data() []byte { return c.pooled.B[c.off:] }

// ChunkChain is the incremental read buffer for one connection: appending a
// freshly read slice is O(1) (a new chunk is linked onto the tail),
// consuming n bytes is O(k) where k is the number of chunks it fully
// retires, and nothing already consumed is ever re-copied. This avoids the
// O(N^2) cost of shifting a single growing buffer's unconsumed prefix left
// on every read.
//
// Each chunk's storage comes from bytebufferpool: Get on Append, Put once
// the chunk is fully consumed or the chain is Reset.
type ChunkChain struct {
	head, tail *chunk
	length     int
}

// Append copies b into a pooled buffer and links it onto the chain.
func (c *ChunkChain) Append(b []byte) {
	if len(b) == 0 {
		return
	}
	pooled := bytebufferpool.Get()
	pooled.Write(b)
	n := &chunk{pooled: pooled}
	if c.tail == nil {
		c.head, c.tail = n, n
	} else {
		c.tail.next = n
		c.tail = n
	}
	c.length += len(b)
}

// Len reports the number of unconsumed bytes currently buffered.
func (c *ChunkChain) Len() int { return c.length }

// Bytes materializes a contiguous snapshot of every unconsumed byte. It
// copies once per call; callers that only need to know "do I have enough
// bytes yet" should check Len first and avoid calling Bytes when Len is
// known to be insufficient.
func (c *ChunkChain) Bytes() []byte {
	if c.length == 0 {
		return nil
	}
	out := make([]byte, 0, c.length)
	for n := c.head; n != nil; n = n.next {
		out = append(out, n.data()...)
	}
	return out
}

// Consume retires the first n unconsumed bytes, releasing any chunk it
// fully drains back to the pool.
func (c *ChunkChain) Consume(n int) {
	if n <= 0 {
		return
	}
	if n > c.length {
		n = c.length
	}
	remaining := n
	for remaining > 0 && c.head != nil {
		avail := len(c.head.data())
		if avail > remaining {
			c.head.off += remaining
			remaining = 0
			break
		}
		remaining -= avail
		drained := c.head
		c.head = c.head.next
		bytebufferpool.Put(drained.pooled)
		if c.head == nil {
			c.tail = nil
		}
	}
	c.length -= n
}

// Reset releases every chunk and returns the chain to empty. Used when a
// connection is removed from the table; the keep-alive reset leaves the
// chain untouched so pipelined bytes survive it.
func (c *ChunkChain) Reset() {
	for n := c.head; n != nil; {
		next := n.next
		bytebufferpool.Put(n.pooled)
		n = next
	}
	c.head, c.tail = nil, nil
	c.length = 0
}
