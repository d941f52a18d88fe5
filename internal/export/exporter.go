// Package export writes the current item to a caller-chosen destination as
// an encrypted intermediate artifact.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/inventory-platform/item-detail-service/internal/domain"
	"github.com/inventory-platform/item-detail-service/internal/security"
	"github.com/inventory-platform/item-detail-service/pkg/logging"
)

const scratchFileName = "item_export.enc"

// StateSource supplies the ViewState snapshot the export reads from.
type StateSource func() domain.ViewState

// Exporter serializes the current item to canonical JSON, encrypts it into a
// process-local scratch file, and copies the ciphertext verbatim to the
// destination. The scratch file is deleted on every exit path.
type Exporter struct {
	state      StateSource
	cipher     security.Cipher
	scratchDir string
	logger     *logging.Logger
}

// New creates an Exporter. The scratch directory is an explicit collaborator
// rather than ambient process state.
func New(state StateSource, cipher security.Cipher, scratchDir string, logger *logging.Logger) *Exporter {
	return &Exporter{
		state:      state,
		cipher:     cipher,
		scratchDir: scratchDir,
		logger:     logger.WithComponent("export"),
	}
}

// exportRecord fixes the field order of the serialized document.
type exportRecord struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	Price               float64 `json:"price"`
	Quantity            int64   `json:"quantity"`
	ProviderName        string  `json:"providerName"`
	ProviderPhoneNumber string  `json:"providerPhoneNumber"`
	ProviderEmail       string  `json:"providerEmail"`
}

// Export runs the full pipeline against dst. Partial writes to dst are not
// rolled back; destination-side atomicity belongs to the caller.
func (e *Exporter) Export(ctx context.Context, dst io.Writer) (err error) {
	state := e.state()
	item, err := state.ItemDetails.ToItem()
	if err != nil {
		return fmt.Errorf("serialize item: %w", err)
	}

	payload, err := json.Marshal(exportRecord{
		ID:                  item.ID,
		Name:                item.Name,
		Price:               item.Price,
		Quantity:            item.Quantity,
		ProviderName:        item.ProviderName,
		ProviderPhoneNumber: item.ProviderPhoneNumber,
		ProviderEmail:       item.ProviderEmail,
	})
	if err != nil {
		return fmt.Errorf("serialize item: %w", err)
	}

	ciphertext, err := e.cipher.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("encrypt item: %w", err)
	}

	scratch := filepath.Join(e.scratchDir, scratchFileName)

	// A stale scratch file from a prior run must not survive into this one.
	if err := os.Remove(scratch); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale scratch file: %w", err)
	}

	if err := os.WriteFile(scratch, ciphertext, 0o600); err != nil {
		return fmt.Errorf("write scratch file: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(scratch); rmErr != nil && !os.IsNotExist(rmErr) {
			e.logger.WithError(rmErr).Error("Failed to remove scratch file")
		}
	}()

	src, err := os.Open(scratch)
	if err != nil {
		return fmt.Errorf("open scratch file: %w", err)
	}
	defer src.Close()

	if err := copyContext(ctx, dst, src); err != nil {
		return fmt.Errorf("write destination: %w", err)
	}

	e.logger.Info("Exported item", "itemId", item.ID, "bytes", len(ciphertext))
	return nil
}

// copyContext copies src to dst in chunks, giving up between chunks when ctx
// is cancelled.
func copyContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
