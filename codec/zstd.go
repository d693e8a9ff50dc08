package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// maxDecoderWindow bounds the memory a single frame may ask the decoder for.
const maxDecoderWindow = 64 << 20

var (
	encOnce sync.Once
	encoder *zstd.Encoder
	encErr  error

	decoders = sync.Pool{
		New: func() any {
			dec, err := zstd.NewReader(nil,
				zstd.WithDecoderConcurrency(1),
				zstd.WithDecoderMaxWindow(maxDecoderWindow),
			)
			if err != nil {
				return err
			}
			return dec
		},
	}
)

// Decompress inflates a zstd stream without an output limit.
func Decompress(data []byte) ([]byte, error) {
	return DecompressLimit(data, 0)
}

// DecompressLimit inflates a zstd stream, failing with KindTooLarge once the
// output passes max bytes. A max of zero or less disables the limit.
func DecompressLimit(data []byte, max int64) ([]byte, error) {
	if len(data) == 0 {
		return nil, newError("decompress", KindTruncated, io.ErrUnexpectedEOF)
	}

	dec, err := getDecoder()
	if err != nil {
		return nil, newError("decompress", KindCorrupt, err)
	}
	defer putDecoder(dec)

	// bytes.Reader keeps Reset on the streaming path so the limit applies
	// while inflating rather than after.
	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, classifyDecodeErr(err)
	}

	var r io.Reader = dec
	if max > 0 {
		r = io.LimitReader(dec, max+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, classifyDecodeErr(err)
	}
	if max > 0 && int64(len(out)) > max {
		return nil, newError("decompress", KindTooLarge, fmt.Errorf("output exceeds %d bytes", max))
	}
	return out, nil
}

func classifyDecodeErr(err error) *Error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return newError("decompress", KindTruncated, err)
	}
	return newError("decompress", KindCorrupt, err)
}

func getDecoder() (*zstd.Decoder, error) {
	switch v := decoders.Get().(type) {
	case *zstd.Decoder:
		return v, nil
	case error:
		return nil, v
	}
	return nil, errors.New("unexpected decoder pool value")
}

func putDecoder(dec *zstd.Decoder) {
	// Reset(nil) drops the reference to the input and any pending output.
	if err := dec.Reset(nil); err != nil {
		dec.Close()
		return
	}
	decoders.Put(dec)
}

// Compress deflates data into a single zstd frame.
func Compress(data []byte) ([]byte, error) {
	encOnce.Do(func() {
		encoder, encErr = zstd.NewWriter(nil)
	})
	if encErr != nil {
		return nil, encErr
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}
