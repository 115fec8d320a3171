// Package hashing computes the content-addressed digest every document is
// keyed by. It is a pure function of bytes: same input, same chunk size or
// not, same digest.
package hashing

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/walksalot/docpipe/internal/errkind"
)

// chunkSize is the read buffer size recommended by the component design.
const chunkSize = 1 << 20 // 1 MiB

// Digest holds both encodings of a SHA-256 sum produced by the same bytes.
type Digest struct {
	Hex    string // 64-char lowercase hex
	Base64 string // 44-char base64url, padded
	Size   int64  // bytes consumed
}

// HashReader streams r in fixed-size chunks through SHA-256 and returns both
// encodings. It never buffers the whole input in memory.
func HashReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, errkind.Wrap(errkind.Internal, err, "reading stream for hashing")
		}
	}
	if total == 0 {
		return Digest{}, ErrEmptyFile
	}
	sum := h.Sum(nil)
	return Digest{
		Hex:    hex.EncodeToString(sum),
		Base64: base64.URLEncoding.EncodeToString(sum),
		Size:   total,
	}, nil
}

// HashFile opens path and hashes its contents.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if info.Size() == 0 {
		return Digest{}, ErrEmptyFile
	}

	return HashReader(f)
}

// HashBytes hashes an in-memory byte slice. Useful for tests and for the
// small number of callers that already hold the full file in memory.
func HashBytes(b []byte) (Digest, error) {
	if len(b) == 0 {
		return Digest{}, ErrEmptyFile
	}
	sum := sha256.Sum256(b)
	return Digest{
		Hex:    hex.EncodeToString(sum[:]),
		Base64: base64.URLEncoding.EncodeToString(sum[:]),
		Size:   int64(len(b)),
	}, nil
}
