package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imisbatch/internal/core/id"
	"imisbatch/internal/domain/batch"
	"imisbatch/internal/domain/insuree"
)

// passthroughTxManager runs the function directly. The real manager's
// locking behavior is exercised in the postgres layer.
type passthroughTxManager struct{}

func (passthroughTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// commitFailTxManager runs the function, then fails the transaction the
// way a real manager does when COMMIT errors.
type commitFailTxManager struct{}

func (commitFailTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return errors.New("commit transaction: connection reset")
}

// memoryStore backs both repository interfaces with one record set, so a
// test can observe print state across export calls.
type memoryStore struct {
	records []*printRecord

	markShort bool // report one fewer row marked than requested
}

type printRecord struct {
	insuree *insuree.Insuree
	batchID id.ID
	printed bool
}

func (m *memoryStore) add(ins *insuree.Insuree, batchID id.ID, printed bool) {
	m.records = append(m.records, &printRecord{insuree: ins, batchID: batchID, printed: printed})
}

func (m *memoryStore) ExistsByCHFID(ctx context.Context, chfID string) (bool, error) {
	for _, r := range m.records {
		if r.insuree.CHFID == chfID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ListUnprinted(ctx context.Context, batchID *id.ID, limit int) ([]*insuree.Insuree, error) {
	var selected []*insuree.Insuree
	for _, r := range m.records {
		if r.printed {
			continue
		}
		if batchID != nil && r.batchID != *batchID {
			continue
		}
		selected = append(selected, r.insuree)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].CHFID < selected[j].CHFID })
	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}
	return selected, nil
}

func (m *memoryStore) Create(ctx context.Context, b *batch.Batch) error { return nil }

func (m *memoryStore) GetByID(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	return nil, nil
}

func (m *memoryStore) List(ctx context.Context, limit, offset int) ([]*batch.Summary, error) {
	return nil, nil
}

func (m *memoryStore) InsertNumber(ctx context.Context, n *batch.Number) error { return nil }

func (m *memoryStore) NumberExists(ctx context.Context, insureeNumber string) (bool, error) {
	return false, nil
}

func (m *memoryStore) MarkPrinted(ctx context.Context, insureeNumbers []string, printedAt time.Time) (int64, error) {
	var marked int64
	for _, number := range insureeNumbers {
		for _, r := range m.records {
			if r.insuree.CHFID == number && !r.printed {
				r.printed = true
				marked++
			}
		}
	}
	if m.markShort && marked > 0 {
		marked--
	}
	return marked, nil
}

func (m *memoryStore) printedNumbers() []string {
	var numbers []string
	for _, r := range m.records {
		if r.printed {
			numbers = append(numbers, r.insuree.CHFID)
		}
	}
	sort.Strings(numbers)
	return numbers
}

func newTestInsuree(chfID string, photo *string) *insuree.Insuree {
	return &insuree.Insuree{
		CHFID:      chfID,
		OtherNames: "Amina",
		LastName:   "Diallo",
		DOB:        time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC),
		Gender:     "F",
		Photo:      photo,
	}
}

func encodedPhoto(t *testing.T, raw []byte) *string {
	t.Helper()
	s := base64.StdEncoding.EncodeToString(raw)
	return &s
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	entries := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		entries[f.Name] = data
	}
	return entries
}

func TestExport_MarksExactSelection(t *testing.T) {
	store := &memoryStore{}
	batchID := id.New()
	photoA := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01}
	store.add(newTestInsuree("100000008", encodedPhoto(t, photoA)), batchID, false)
	store.add(newTestInsuree("200000002", nil), batchID, false)
	store.add(newTestInsuree("300000003", nil), batchID, true)

	svc := NewService(store, store, passthroughTxManager{})
	result, err := svc.ExportInsurees(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, result)
	defer os.Remove(result.ArchivePath)

	assert.Equal(t, 2, result.Count)
	assert.False(t, result.DryRun)

	// Exactly the unprinted pair advanced; the already printed record is
	// untouched but still reported as printed.
	assert.Equal(t, []string{"100000008", "200000002", "300000003"}, store.printedNumbers())

	entries := readArchive(t, result.ArchivePath)
	require.Contains(t, entries, "index.csv")
	assert.Equal(t, photoA, entries["100000008.jpg"])
	assert.NotContains(t, entries, "200000002.jpg")
	assert.NotContains(t, entries, "300000003.jpg")

	rows, err := csv.NewReader(bytes.NewReader(entries["index.csv"])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"100000008", "Amina", "Diallo", "1990-03-15", "F"}, rows[0])
	assert.Equal(t, "200000002", rows[1][0])

	// Everything is printed now, so a second export finds nothing.
	result, err = svc.ExportInsurees(context.Background(), Options{})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestExport_DryRunRepeatable(t *testing.T) {
	store := &memoryStore{}
	batchID := id.New()
	store.add(newTestInsuree("100000008", nil), batchID, false)
	store.add(newTestInsuree("200000002", nil), batchID, false)

	svc := NewService(store, store, passthroughTxManager{})

	first, err := svc.ExportInsurees(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	require.NotNil(t, first)
	defer os.Remove(first.ArchivePath)

	second, err := svc.ExportInsurees(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	require.NotNil(t, second)
	defer os.Remove(second.ArchivePath)

	assert.Equal(t, first.Count, second.Count)
	assert.True(t, first.DryRun)
	assert.Empty(t, store.printedNumbers())

	firstIndex := readArchive(t, first.ArchivePath)["index.csv"]
	secondIndex := readArchive(t, second.ArchivePath)["index.csv"]
	assert.Equal(t, firstIndex, secondIndex)
}

func TestExport_AmountCap(t *testing.T) {
	store := &memoryStore{}
	batchID := id.New()
	store.add(newTestInsuree("200000002", nil), batchID, false)
	store.add(newTestInsuree("100000008", nil), batchID, false)
	store.add(newTestInsuree("300000003", nil), batchID, false)

	svc := NewService(store, store, passthroughTxManager{})
	result, err := svc.ExportInsurees(context.Background(), Options{Amount: 1})
	require.NoError(t, err)
	require.NotNil(t, result)
	defer os.Remove(result.ArchivePath)

	assert.Equal(t, 1, result.Count)
	assert.Equal(t, []string{"100000008"}, store.printedNumbers())
}

func TestExport_BatchFilter(t *testing.T) {
	store := &memoryStore{}
	wanted := id.New()
	other := id.New()
	store.add(newTestInsuree("100000008", nil), wanted, false)
	store.add(newTestInsuree("200000002", nil), other, false)

	svc := NewService(store, store, passthroughTxManager{})
	result, err := svc.ExportInsurees(context.Background(), Options{BatchID: &wanted})
	require.NoError(t, err)
	require.NotNil(t, result)
	defer os.Remove(result.ArchivePath)

	assert.Equal(t, 1, result.Count)
	assert.Equal(t, []string{"100000008"}, store.printedNumbers())
}

func TestExport_NothingToExport(t *testing.T) {
	store := &memoryStore{}
	store.add(newTestInsuree("100000008", nil), id.New(), true)

	svc := NewService(store, store, passthroughTxManager{})
	result, err := svc.ExportInsurees(context.Background(), Options{})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, []string{"100000008"}, store.printedNumbers())
}

func TestExport_PhotoWithLineBreaks(t *testing.T) {
	store := &memoryStore{}
	raw := []byte("jpeg-bytes-here")
	wrapped := base64.StdEncoding.EncodeToString(raw)
	wrapped = wrapped[:8] + "\r\n" + wrapped[8:]
	store.add(newTestInsuree("100000008", &wrapped), id.New(), false)

	svc := NewService(store, store, passthroughTxManager{})
	result, err := svc.ExportInsurees(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, result)
	defer os.Remove(result.ArchivePath)

	entries := readArchive(t, result.ArchivePath)
	assert.Equal(t, raw, entries["100000008.jpg"])
}

func TestExport_CorruptPhotoAborts(t *testing.T) {
	store := &memoryStore{}
	bad := "!!! not base64 !!!"
	store.add(newTestInsuree("100000008", &bad), id.New(), false)

	svc := NewService(store, store, passthroughTxManager{})
	result, err := svc.ExportInsurees(context.Background(), Options{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, store.printedNumbers())
}

func TestExport_ArchiveRemovedOnCommitFailure(t *testing.T) {
	pattern := filepath.Join(os.TempDir(), "insuree_export_*.zip")
	before, err := filepath.Glob(pattern)
	require.NoError(t, err)

	store := &memoryStore{}
	store.add(newTestInsuree("100000008", nil), id.New(), false)

	svc := NewService(store, store, commitFailTxManager{})
	result, err := svc.ExportInsurees(context.Background(), Options{})
	require.Error(t, err)
	assert.Nil(t, result)

	// The archive assembled inside the failed transaction must be gone.
	after, err := filepath.Glob(pattern)
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
}

func TestExport_MarkCountMismatchAborts(t *testing.T) {
	store := &memoryStore{markShort: true}
	batchID := id.New()
	store.add(newTestInsuree("100000008", nil), batchID, false)
	store.add(newTestInsuree("200000002", nil), batchID, false)

	svc := NewService(store, store, passthroughTxManager{})
	result, err := svc.ExportInsurees(context.Background(), Options{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "selected numbers printed")
}
