package chunkstore

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// compress and decompress bind the "compressed chunk" side of the
// chunk-file invariant from spec.md §3. The historical format used LZO;
// this implementation substitutes zstd (see DESIGN.md), reusing encoders
// and decoders through sync.Pool the way the teacher's storage/compressed.go
// reused gzip readers/writers to cut GC pressure on the hot backup path.
var encoderPool = sync.Pool{
	New: func() interface{} {
		w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(err)
		}
		return w
	},
}

var decoderPool = sync.Pool{
	New: func() interface{} {
		d, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		return d
	},
}

func compress(plaintext []byte) []byte {
	w := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(w)

	var buf bytes.Buffer
	w.Reset(&buf)
	_, _ = w.Write(plaintext)
	_ = w.Close()
	return buf.Bytes()
}

func decompress(compressed []byte) ([]byte, error) {
	d := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(d)

	return d.DecodeAll(compressed, nil)
}
