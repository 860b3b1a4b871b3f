package files

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// DigestFunction selects a content hash. Values follow the remote
// execution API's DigestFunction enum.
type DigestFunction int

const (
	SHA256 DigestFunction = 1
	SHA1   DigestFunction = 2
	MD5    DigestFunction = 3
	SHA384 DigestFunction = 5
	SHA512 DigestFunction = 6
	BLAKE3 DigestFunction = 9
)

var digestNames = map[DigestFunction]string{
	SHA256: "sha256",
	SHA1:   "sha1",
	MD5:    "md5",
	SHA384: "sha384",
	SHA512: "sha512",
	BLAKE3: "blake3",
}

func (f DigestFunction) String() string {
	if name, ok := digestNames[f]; ok {
		return name
	}
	return fmt.Sprintf("DigestFunction(%d)", int(f))
}

// ParseDigestFunction accepts the lower- or upper-case function name.
func ParseDigestFunction(s string) (DigestFunction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for fn, name := range digestNames {
		if name == s {
			return fn, nil
		}
	}
	return 0, fmt.Errorf("files: unknown digest function %q", s)
}

// New returns a fresh hasher for f.
func (f DigestFunction) New() (hash.Hash, error) {
	switch f {
	case SHA256:
		return sha256.New(), nil
	case SHA1:
		return sha1.New(), nil
	case MD5:
		return md5.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	}
	return nil, fmt.Errorf("files: unsupported digest function %s", f)
}

// Digest identifies file contents: the hash function, the lowercase hex
// hash, and the content length.
type Digest struct {
	Function  DigestFunction
	Hash      string
	SizeBytes int64
}

func (d Digest) String() string {
	return fmt.Sprintf("%s:%s/%d", d.Function, d.Hash, d.SizeBytes)
}

// ComputeDigest hashes everything r yields.
func ComputeDigest(fn DigestFunction, r io.Reader) (Digest, error) {
	h, err := fn.New()
	if err != nil {
		return Digest{}, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, fmt.Errorf("files: digest: %w", err)
	}
	return Digest{Function: fn, Hash: hex.EncodeToString(h.Sum(nil)), SizeBytes: n}, nil
}
