// Package stream turns a CBC block cipher into an ordinary byte-stream filter.
//
// Writer buffers partial blocks and zero-pads the final block on Close;
// Reader decrypts blocks lazily. The stream carries no length framing: reading
// back a stream of N bytes yields the N bytes followed by
// (blockSize - N%blockSize) % blockSize zero bytes, then io.EOF. Consumers
// that need the true payload length must find it in the payload itself.
//
// Writer and Reader are meant for sequential use by a single goroutine.
package stream

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("stream: write to closed stream")

	// ErrTruncatedBlock indicates the ciphertext ended in the middle of a block.
	ErrTruncatedBlock = errors.New("stream: ciphertext is not block aligned")
)

// BlockCipher encrypts and decrypts block-aligned buffers in place, keeping
// chaining state between calls. *crypto.CBC implements it.
type BlockCipher interface {
	BlockSize() int
	Encrypt(buf []byte) error
	Decrypt(buf []byte) error
}

// Writer encrypts everything written to it and forwards whole ciphertext
// blocks to the underlying writer.
type Writer struct {
	w      io.Writer
	c      BlockCipher
	block  []byte
	n      int // bytes buffered in block
	closed bool
	err    error
}

// NewWriter returns a Writer encrypting to w with c.
func NewWriter(w io.Writer, c BlockCipher) *Writer {
	return &Writer{
		w:     w,
		c:     c,
		block: make([]byte, c.BlockSize()),
	}
}

// Write buffers p and emits every block that fills up.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}

	written := 0
	for len(p) > 0 {
		k := copy(w.block[w.n:], p)
		w.n += k
		p = p[k:]
		written += k
		if w.n == len(w.block) {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Close zero-pads a partial final block, encrypts and emits it. It does not
// close the underlying writer. A failed flush is reported, and the stream
// must then be considered unusable.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}
	if w.n > 0 {
		clear(w.block[w.n:])
		w.n = len(w.block)
		if err := w.flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flush() error {
	if err := w.c.Encrypt(w.block); err != nil {
		w.err = err
		return err
	}
	if _, err := w.w.Write(w.block); err != nil {
		w.err = fmt.Errorf("stream: write block: %w", err)
		return w.err
	}
	w.n = 0
	return nil
}

// Reader decrypts a ciphertext stream produced by Writer.
type Reader struct {
	r     io.Reader
	c     BlockCipher
	block []byte
	pos   int
	end   int
	err   error
}

// NewReader returns a Reader decrypting r with c.
func NewReader(r io.Reader, c BlockCipher) *Reader {
	return &Reader{
		r:     r,
		c:     c,
		block: make([]byte, c.BlockSize()),
	}
}

// Read decrypts as many blocks as needed to fill p.
func (r *Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if r.pos == r.end {
			if err := r.fill(); err != nil {
				if n > 0 && err == io.EOF {
					return n, nil
				}
				return n, err
			}
		}
		k := copy(p[n:], r.block[r.pos:r.end])
		r.pos += k
		n += k
	}
	return n, nil
}

func (r *Reader) fill() error {
	if r.err != nil {
		return r.err
	}
	_, err := io.ReadFull(r.r, r.block)
	switch {
	case err == io.EOF:
		r.err = io.EOF
		return r.err
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.err = ErrTruncatedBlock
		return r.err
	case err != nil:
		r.err = fmt.Errorf("stream: read block: %w", err)
		return r.err
	}
	if err := r.c.Decrypt(r.block); err != nil {
		r.err = err
		return err
	}
	r.pos, r.end = 0, len(r.block)
	return nil
}
