// Package storage keeps uploaded documents, stock photos and rendered invoices in an
// object bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when a key has no object behind it.
var ErrObjectNotFound = errors.New("storage: object not found")

// Store is the object bucket used by the service.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// Categories accepted when building object keys.
const (
	CategoryLicense  = "license"
	CategoryDocument = "document"
	CategoryStock    = "stock"
	CategoryThumb    = "thumbnails"
	CategoryInvoice  = "invoices"
)

// ObjectKey builds dealers/<dealerID>/<category>/<uuid><ext>. The extension is
// taken from the client file name, lower-cased.
func ObjectKey(dealerID int64, category, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("dealers/%d/%s/%s%s", dealerID, category, uuid.NewString(), ext)
}

// InvoiceKey is the stable key for a rendered invoice PDF.
func InvoiceKey(dealerID, invoiceID int64, renderer string) string {
	return fmt.Sprintf("dealers/%d/%s/%d-%s.pdf", dealerID, CategoryInvoice, invoiceID, renderer)
}

func publicURL(base, bucket, key string) string {
	base = strings.TrimRight(base, "/")
	if bucket == "" {
		return base + "/" + key
	}
	return base + "/" + bucket + "/" + key
}
