package storage

import (
	"context"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey(12, CategoryLicense, "Driving Licence.JPG")
	assert.Regexp(t, regexp.MustCompile(`^dealers/12/license/[0-9a-f-]{36}\.jpg$`), key)
	assert.NotEqual(t, key, ObjectKey(12, CategoryLicense, "Driving Licence.JPG"))
	assert.Equal(t, "dealers/3/invoices/9-native.pdf", InvoiceKey(3, 9, "native"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("https://cdn.example/")

	require.NoError(t, store.Put(ctx, "a/b.pdf", "application/pdf", strings.NewReader("%PDF")))
	assert.Equal(t, "application/pdf", store.ContentType("a/b.pdf"))
	assert.Equal(t, "https://cdn.example/a/b.pdf", store.URL("a/b.pdf"))

	rc, err := store.Open(ctx, "a/b.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF", string(data))

	require.NoError(t, store.Delete(ctx, "a/b.pdf"))
	_, err = store.Open(ctx, "a/b.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestPublicURLIncludesBucket(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/docs/k", publicURL("https://storage.googleapis.com", "docs", "k"))
}
