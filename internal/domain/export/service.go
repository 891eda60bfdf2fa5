// Package export assembles print bundles: a csv index plus decoded photo
// attachments for every insuree whose number has not been printed yet,
// zipped into one archive, with the covered numbers marked printed in the
// same transaction.
package export

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"imisbatch/internal/core/id"
	"imisbatch/internal/core/tx"
	"imisbatch/internal/domain/batch"
	"imisbatch/internal/domain/insuree"
	"imisbatch/pkg/logger"
)

// Options narrows the export selection.
type Options struct {
	// BatchID restricts the export to numbers of one batch.
	BatchID *id.ID

	// Amount caps the number of exported insurees (0 = no cap).
	Amount int

	// DryRun produces the archive without touching print state, so the
	// same candidates are returned on every call.
	DryRun bool
}

// Result describes a produced bundle. The caller owns the archive file and
// must remove it once streamed.
type Result struct {
	ArchivePath string
	Count       int
	DryRun      bool
}

// Service selects unprinted numbers, bundles them and advances print state.
type Service struct {
	insurees  insuree.Repository
	batches   batch.Repository
	txManager tx.Manager
}

// NewService creates an export service.
func NewService(insurees insuree.Repository, batches batch.Repository, txManager tx.Manager) *Service {
	return &Service{
		insurees:  insurees,
		batches:   batches,
		txManager: txManager,
	}
}

// ExportInsurees bundles all insurees holding unprinted batch numbers that
// match opts. It returns nil when nothing matches; no archive is produced
// and nothing is mutated.
//
// Selection and print-marking run inside one transaction with the matched
// batch-number rows locked, so the set read as unprinted and the set marked
// printed are the same set even under concurrent exports. Any bundling
// failure rolls the transaction back before print state is committed.
func (s *Service) ExportInsurees(ctx context.Context, opts Options) (*Result, error) {
	var result *Result

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		selected, err := s.insurees.ListUnprinted(ctx, opts.BatchID, opts.Amount)
		if err != nil {
			return fmt.Errorf("select insurees to export: %w", err)
		}
		if len(selected) == 0 {
			return nil
		}

		archivePath, err := s.writeArchive(selected)
		if err != nil {
			return err
		}

		if !opts.DryRun {
			numbers := make([]string, len(selected))
			for i, ins := range selected {
				numbers[i] = ins.CHFID
			}
			marked, err := s.batches.MarkPrinted(ctx, numbers, time.Now().UTC())
			if err != nil {
				os.Remove(archivePath)
				return fmt.Errorf("mark numbers printed: %w", err)
			}
			if marked != int64(len(numbers)) {
				// The selection held row locks, so a count mismatch means the
				// store is inconsistent. Abort rather than ship a bundle whose
				// numbers were not all advanced.
				os.Remove(archivePath)
				return fmt.Errorf("marked %d of %d selected numbers printed", marked, len(numbers))
			}
		}

		result = &Result{
			ArchivePath: archivePath,
			Count:       len(selected),
			DryRun:      opts.DryRun,
		}
		return nil
	})
	if err != nil {
		// The transaction can fail after the callback succeeded (commit
		// error); the assembled archive must not outlive the export.
		if result != nil {
			os.Remove(result.ArchivePath)
		}
		return nil, err
	}

	if result != nil {
		logger.Info(ctx, "insuree export produced",
			"count", result.Count,
			"dry_run", result.DryRun,
		)
	}
	return result, nil
}

// writeArchive assembles the zip bundle into a temp file: index.csv first,
// then one <chf_id>.jpg per insuree with a photo. The temp file is removed
// on every failure path.
func (s *Service) writeArchive(selected []*insuree.Insuree) (path string, err error) {
	file, err := os.CreateTemp("", "insuree_export_*.zip")
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive file: %w", cerr)
		}
		if err != nil {
			os.Remove(file.Name())
		}
	}()

	zw := zip.NewWriter(file)

	index, err := zw.Create("index.csv")
	if err != nil {
		return "", fmt.Errorf("create index entry: %w", err)
	}
	cw := csv.NewWriter(index)
	for _, ins := range selected {
		row := []string{
			ins.CHFID,
			ins.OtherNames,
			ins.LastName,
			ins.DOB.Format("2006-01-02"),
			ins.Gender,
		}
		if err = cw.Write(row); err != nil {
			return "", fmt.Errorf("write index row: %w", err)
		}
	}
	cw.Flush()
	if err = cw.Error(); err != nil {
		return "", fmt.Errorf("flush index: %w", err)
	}

	for _, ins := range selected {
		if !ins.HasPhoto() {
			continue
		}
		photo, derr := decodePhoto(*ins.Photo)
		if derr != nil {
			err = fmt.Errorf("decode photo for %s: %w", ins.CHFID, derr)
			return "", err
		}
		entry, werr := zw.Create(ins.CHFID + ".jpg")
		if werr != nil {
			err = fmt.Errorf("create photo entry for %s: %w", ins.CHFID, werr)
			return "", err
		}
		if _, werr = entry.Write(photo); werr != nil {
			err = fmt.Errorf("write photo for %s: %w", ins.CHFID, werr)
			return "", err
		}
	}

	if err = zw.Close(); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	return file.Name(), nil
}

// decodePhoto decodes a base64 photo, tolerating the line breaks some
// legacy records embed in the stored value.
func decodePhoto(encoded string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, encoded)
	return base64.StdEncoding.DecodeString(cleaned)
}
