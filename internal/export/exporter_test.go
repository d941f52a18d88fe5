package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventory-platform/item-detail-service/internal/domain"
	"github.com/inventory-platform/item-detail-service/internal/security"
	"github.com/inventory-platform/item-detail-service/pkg/logging"
)

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("test")
	cfg.Level = logging.LevelError
	return logging.New(cfg)
}

func stateFor(item domain.Item) StateSource {
	return func() domain.ViewState { return domain.NewViewState(item) }
}

type failingWriter struct{ err error }

func (w failingWriter) Write(p []byte) (int, error) { return 0, w.err }

func scratchPath(dir string) string { return filepath.Join(dir, scratchFileName) }

func TestExportRoundTripsThroughCipher(t *testing.T) {
	cipher, err := security.NewAESGCM([]byte("master-secret"), []byte("salt"), []byte("item-export"))
	require.NoError(t, err)

	item := domain.Item{
		ID:                  1,
		Name:                "Bolt",
		Price:               0.50,
		Quantity:            3,
		ProviderName:        "Acme",
		ProviderPhoneNumber: "555-0101",
		ProviderEmail:       "sales@acme.test",
	}

	dir := t.TempDir()
	exporter := New(stateFor(item), cipher, dir, testLogger())

	var dst bytes.Buffer
	require.NoError(t, exporter.Export(context.Background(), &dst))

	// The destination holds ciphertext only; with the key it decrypts back
	// to the exact exported fields.
	plaintext, err := cipher.Decrypt(dst.Bytes())
	require.NoError(t, err)

	var decoded domain.Item
	require.NoError(t, json.Unmarshal(plaintext, &decoded))
	assert.Equal(t, item, decoded)

	_, statErr := os.Stat(scratchPath(dir))
	assert.True(t, os.IsNotExist(statErr), "scratch file must not survive a successful export")
}

func TestExportFieldOrderIsStable(t *testing.T) {
	cipher, err := security.NewAESGCM([]byte("master-secret"), nil, nil)
	require.NoError(t, err)

	exporter := New(stateFor(domain.Item{ID: 1, Name: "Bolt", Price: 0.5, Quantity: 3}), cipher, t.TempDir(), testLogger())

	var dst bytes.Buffer
	require.NoError(t, exporter.Export(context.Background(), &dst))

	plaintext, err := cipher.Decrypt(dst.Bytes())
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":1,"name":"Bolt","price":0.5,"quantity":3,"providerName":"","providerPhoneNumber":"","providerEmail":""}`,
		string(plaintext))
	assert.True(t, bytes.HasPrefix(plaintext, []byte(`{"id":`)), "id must be the first serialized field")
}

func TestExportCleansScratchOnDestinationFailure(t *testing.T) {
	cipher, err := security.NewAESGCM([]byte("master-secret"), nil, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	exporter := New(stateFor(domain.Item{ID: 1, Name: "Bolt", Quantity: 1}), cipher, dir, testLogger())

	sinkErr := errors.New("destination unwritable")
	err = exporter.Export(context.Background(), failingWriter{err: sinkErr})
	require.ErrorIs(t, err, sinkErr)

	_, statErr := os.Stat(scratchPath(dir))
	assert.True(t, os.IsNotExist(statErr), "scratch file must not survive a failed export")
}

func TestExportCleansScratchOnCancellation(t *testing.T) {
	cipher, err := security.NewAESGCM([]byte("master-secret"), nil, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	exporter := New(stateFor(domain.Item{ID: 1, Name: "Bolt", Quantity: 1}), cipher, dir, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	err = exporter.Export(ctx, &dst)
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(scratchPath(dir))
	assert.True(t, os.IsNotExist(statErr), "scratch file must not survive a cancelled export")
}

func TestExportDeletesStaleScratchFirst(t *testing.T) {
	cipher, err := security.NewAESGCM([]byte("master-secret"), nil, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(scratchPath(dir), []byte("stale ciphertext"), 0o600))

	exporter := New(stateFor(domain.Item{ID: 2, Name: "Washer", Quantity: 5}), cipher, dir, testLogger())

	var dst bytes.Buffer
	require.NoError(t, exporter.Export(context.Background(), &dst))

	plaintext, err := cipher.Decrypt(dst.Bytes())
	require.NoError(t, err)
	assert.Contains(t, string(plaintext), `"name":"Washer"`)
}

func TestExportFailsOnUnwritableScratchDir(t *testing.T) {
	cipher, err := security.NewAESGCM([]byte("master-secret"), nil, nil)
	require.NoError(t, err)

	exporter := New(stateFor(domain.Item{ID: 1, Quantity: 1}), cipher, filepath.Join(t.TempDir(), "missing"), testLogger())

	var dst bytes.Buffer
	err = exporter.Export(context.Background(), &dst)
	assert.Error(t, err)
	assert.Zero(t, dst.Len())
}
