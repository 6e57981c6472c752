package npm

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/source"
)

func (s *Source) fetcher(id string, res source.Resolution) source.FetchFunc {
	return func(ctx context.Context) (source.FetchResult, error) {
		var buf bytes.Buffer
		n, err := s.client.Download(ctx, res.Tarball, func() io.Writer {
			buf.Reset()
			return &buf
		})
		if err != nil {
			return source.FetchResult{}, errors.Wrap(errors.ErrCodeNetwork, err, "fetch %s", id)
		}
		if err := verify(buf.Bytes(), res.Integrity); err != nil {
			return source.FetchResult{}, errors.Wrap(errors.ErrCodeIntegrity, err, "fetch %s", id)
		}
		if s.storeDir != "" {
			if err := store(s.storeDir, buf.Bytes()); err != nil {
				return source.FetchResult{}, err
			}
		}
		return source.FetchResult{Integrity: res.Integrity, Size: n}, nil
	}
}

// verify checks data against a subresource integrity string. Of several
// space separated hashes the first one with a known algorithm is used.
func verify(data []byte, sri string) error {
	for _, entry := range strings.Fields(sri) {
		algo, want, ok := strings.Cut(entry, "-")
		if !ok {
			continue
		}
		var h hash.Hash
		switch algo {
		case "sha512":
			h = sha512.New()
		case "sha1":
			h = sha1.New()
		default:
			continue
		}
		h.Write(data)
		if got := base64.StdEncoding.EncodeToString(h.Sum(nil)); got != want {
			return errors.New(errors.ErrCodeIntegrity, "%s mismatch: got %s, want %s", algo, got, want)
		}
		return nil
	}
	return errors.New(errors.ErrCodeIntegrity, "no supported hash in %q", sri)
}

// store writes a tarball to dir, named by its hex SHA-512.
func store(dir string, data []byte) error {
	sum := sha512.Sum512(data)
	path := filepath.Join(dir, hex.EncodeToString(sum[:])+".tgz")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func hexToBase64(s string) string {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}
