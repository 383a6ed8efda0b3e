package media

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the upload size limit, 10 MB.
const DefaultMaxBytes int64 = 10 << 20

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds the size limit")
	ErrUnsupportedType = errors.New("file type is not allowed")
	ErrTypeMismatch    = errors.New("file content does not match its declared type")
)

var typeAliases = map[string]string{
	"image/jpg": "image/jpeg",
}

// Policy is an upload whitelist with a size limit.
type Policy struct {
	Allowed  []string
	MaxBytes int64
}

// DocumentPolicy accepts licence scans and paperwork.
func DocumentPolicy(maxBytes int64) Policy {
	return Policy{Allowed: []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}, MaxBytes: maxBytes}
}

// ImagePolicy accepts stock photos.
func ImagePolicy(maxBytes int64) Policy {
	return Policy{Allowed: []string{"image/jpeg", "image/png", "image/webp"}, MaxBytes: maxBytes}
}

// CanonicalType lower-cases ct, drops parameters and resolves aliases such as image/jpg.
func CanonicalType(ct string) string {
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		ct = parsed
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if alias, ok := typeAliases[ct]; ok {
		return alias
	}
	return ct
}

// Check validates size, the declared type and the sniffed content of data and
// returns the canonical content type.
func (p Policy) Check(declared string, data []byte) (string, error) {
	size := int64(len(data))
	if size == 0 {
		return "", ErrEmptyFile
	}
	limit := p.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if size > limit {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, size, limit)
	}
	ct := CanonicalType(declared)
	if !p.allows(ct) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, declared)
	}
	detected := mimetype.Detect(data)
	if !detected.Is(ct) {
		return "", fmt.Errorf("%w: declared %s, content is %s", ErrTypeMismatch, ct, detected.String())
	}
	return ct, nil
}

func (p Policy) allows(ct string) bool {
	for _, a := range p.Allowed {
		if a == ct {
			return true
		}
	}
	return false
}

// Detect returns the content type sniffed from data.
func Detect(data []byte) string {
	return CanonicalType(mimetype.Detect(data).String())
}

// Extension returns the preferred file extension for a canonical type.
func Extension(ct string) string {
	if m := mimetype.Lookup(ct); m != nil {
		return m.Extension()
	}
	return ""
}
