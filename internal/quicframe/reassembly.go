package quicframe

import "sort"

// CryptoReassembler buffers out-of-order CRYPTO frames for one epoch
// and exposes the contiguous prefix ready for the TLS driver.
//
// spec.md §9 calls out that the original implementation tracked only a
// scalar high-water mark and explicitly requires the buffered
// (offset, bytes) gap-list form for correctness; this type is that
// gap-buffer.
type CryptoReassembler struct {
	delivered uint64 // bytes already handed to the TLS driver
	pending   []cryptoChunk
}

type cryptoChunk struct {
	offset uint64
	data   []byte
}

// NewCryptoReassembler returns an empty reassembler.
func NewCryptoReassembler() *CryptoReassembler {
	return &CryptoReassembler{}
}

// Push adds a received CRYPTO frame. It returns the newly-contiguous
// bytes (possibly empty) that are now ready to deliver to the TLS
// driver, in delivery order.
func (r *CryptoReassembler) Push(offset uint64, data []byte) []byte {
	end := offset + uint64(len(data))

	if end <= r.delivered {
		return nil // wholly duplicate/below the delivered prefix
	}
	if offset < r.delivered {
		// Overlaps the delivered prefix; keep only the new tail.
		skip := r.delivered - offset
		data = data[skip:]
		offset = r.delivered
	}
	if len(data) > 0 {
		r.pending = append(r.pending, cryptoChunk{offset: offset, data: data})
		sort.Slice(r.pending, func(i, j int) bool { return r.pending[i].offset < r.pending[j].offset })
	}

	return r.drain()
}

// drain pulls every chunk that extends the contiguous prefix starting
// at r.delivered, merges them, and advances r.delivered.
func (r *CryptoReassembler) drain() []byte {
	var out []byte
	for len(r.pending) > 0 {
		c := r.pending[0]
		if c.offset > r.delivered {
			break // gap: out-of-order frame stays buffered
		}

		skip := r.delivered - c.offset
		if skip < uint64(len(c.data)) {
			newBytes := c.data[skip:]
			out = append(out, newBytes...)
			r.delivered += uint64(len(newBytes))
		}
		r.pending = r.pending[1:]
	}
	return out
}

// Delivered returns the cumulative contiguous offset handed to TLS so
// far.
func (r *CryptoReassembler) Delivered() uint64 {
	return r.delivered
}
