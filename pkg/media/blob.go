// Package media captures audio and still images and wraps local files as
// artifacts ready to be attached to a message.
package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Blob is one captured or loaded artifact.
type Blob struct {
	Name string
	MIME string
	Data []byte
}

// NewBlob sniffs the MIME type from the content.
func NewBlob(name string, data []byte) Blob {
	return Blob{Name: name, MIME: DetectMIME(data), Data: data}
}

func DetectMIME(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// ExtensionFor returns the canonical file extension for a MIME type, or ".bin".
func ExtensionFor(mime string) string {
	if mt := mimetype.Lookup(mime); mt != nil && mt.Extension() != "" {
		return mt.Extension()
	}
	return ".bin"
}

func (b Blob) IsImage() bool {
	return strings.HasPrefix(b.MIME, "image/")
}

func (b Blob) Size() int {
	return len(b.Data)
}

func (b Blob) Reader() io.Reader {
	return bytes.NewReader(b.Data)
}

// DataURL renders the blob inline as data:<mime>;base64,<payload>.
func (b Blob) DataURL() string {
	mime := b.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// LoadFile reads path into a Blob. maxBytes <= 0 means no limit.
func LoadFile(path string, maxBytes int64) (Blob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Blob{}, err
	}
	if info.IsDir() {
		return Blob{}, fmt.Errorf("%s is a directory", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return Blob{}, fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Blob{}, err
	}
	return NewBlob(filepath.Base(path), data), nil
}
