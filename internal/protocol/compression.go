package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// MaxDecompressedSize bounds the expanded size of a compressed body.
const MaxDecompressedSize = MaxFrameSize

// Compression errors.
var (
	// ErrDecompression is wrapped by every failure of Expand, whatever the
	// underlying codec reported.
	ErrDecompression = errors.New("protocol: message could not be decompressed")

	// ErrUnsupportedCompression is returned for unknown compression tags.
	ErrUnsupportedCompression = errors.New("protocol: unsupported compression")

	errTooLarge = errors.New("decompressed body exceeds limit")
)

// Expand returns the encoded body carried by env. Inline bodies are returned
// untouched; compressed ones are expanded on a separate goroutine that stops
// early once ctx is done.
func Expand(ctx context.Context, env *Envelope) ([]byte, error) {
	switch env.Compression {
	case CompressionNone:
		return env.Data, nil
	case CompressionGzip, CompressionZstd:
	default:
		return nil, fmt.Errorf("%w: %w: %s", ErrDecompression, ErrUnsupportedCompression, env.Compression)
	}

	if env.CompressedData == nil {
		return nil, fmt.Errorf("%w: compressed data is missing", ErrDecompression)
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("decoder panic: %v", r)}
			}
		}()
		data, err := decompress(ctx, env.Compression, env.CompressedData)
		done <- result{data: data, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompression, r.err)
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrDecompression, ctx.Err())
	}
}

func decompress(ctx context.Context, c Compression, data []byte) ([]byte, error) {
	var r io.Reader
	switch c {
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case CompressionZstd:
		zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	default:
		return nil, ErrUnsupportedCompression
	}

	out, err := io.ReadAll(io.LimitReader(&contextReader{ctx: ctx, r: r}, MaxDecompressedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecompressedSize {
		return nil, errTooLarge
	}
	return out, nil
}

// contextReader stops reading once its context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// Compress compresses an encoded body with the given algorithm.
func Compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer zw.Close()
		return zw.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	}
}

// EncodeCompressed compresses body and wraps it in an envelope.
func EncodeCompressed(c Compression, body []byte) ([]byte, error) {
	if c == CompressionNone {
		return EncodeEnvelope(&Envelope{Compression: c, Data: body}), nil
	}
	compressed, err := Compress(c, body)
	if err != nil {
		return nil, err
	}
	return EncodeEnvelope(&Envelope{Compression: c, CompressedData: compressed}), nil
}

// DecodeServerMessage decodes a full server frame. It is used by clients.
func DecodeServerMessage(ctx context.Context, data []byte) (*ServerMessage, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	body, err := Expand(ctx, env)
	if err != nil {
		return nil, err
	}
	return DecodeServerBody(body)
}
