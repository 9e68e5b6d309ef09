package fileserver

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestUploadAndServeRoundtrip(t *testing.T) {
	svc := New(t.TempDir(), 1<<20)
	payload := append(append([]byte{}, pngHeader...), []byte("pixels")...)

	url, err := svc.Upload(context.Background(), "photo.png", int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/api/files/"))

	name := strings.TrimPrefix(url, "/api/files/")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", url+"?name=photo.png", nil)
	svc.Serve(rec, req, name)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes(), "served bytes must match the upload after gzip roundtrip")
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "photo.png")
}

func TestUploadRejectsBlockedExtension(t *testing.T) {
	svc := New(t.TempDir(), 1<<20)
	_, err := svc.Upload(context.Background(), "evil.exe", 4, bytes.NewReader([]byte("MZ\x90\x00")))
	assert.Error(t, err)
}

func TestUploadRejectsMismatchedMagic(t *testing.T) {
	svc := New(t.TempDir(), 1<<20)
	_, err := svc.Upload(context.Background(), "fake.png", 9, bytes.NewReader([]byte("not a png")))
	assert.Error(t, err)
}

func TestUploadRejectsOversize(t *testing.T) {
	svc := New(t.TempDir(), 8)
	_, err := svc.Upload(context.Background(), "big.txt", 9, bytes.NewReader([]byte("123456789")))
	assert.Error(t, err)
}

func TestServeMissingFile(t *testing.T) {
	svc := New(t.TempDir(), 1<<20)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/files/nope.png", nil)
	svc.Serve(rec, req, "nope.png")
	assert.Equal(t, 404, rec.Code)
}
