package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imisbatch/internal/core/apperror"
	appctx "imisbatch/internal/core/context"
	"imisbatch/internal/core/id"
	"imisbatch/internal/domain/insuree"
	"imisbatch/internal/domain/location"
)

// Mock objects

type mockInsureeRepo struct {
	existing  map[string]bool
	existsErr error
}

func (m *mockInsureeRepo) ExistsByCHFID(ctx context.Context, chfID string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.existing[chfID], nil
}

func (m *mockInsureeRepo) ListUnprinted(ctx context.Context, batchID *id.ID, limit int) ([]*insuree.Insuree, error) {
	return nil, nil
}

type mockBatchRepo struct {
	batches map[id.ID]*Batch
	numbers map[string]id.ID

	insertCalls     int
	duplicateInsert int // fail this many inserts with DUPLICATE_ENTRY first
}

func newMockBatchRepo() *mockBatchRepo {
	return &mockBatchRepo{
		batches: make(map[id.ID]*Batch),
		numbers: make(map[string]id.ID),
	}
}

func (m *mockBatchRepo) Create(ctx context.Context, b *Batch) error {
	m.batches[b.ID] = b
	return nil
}

func (m *mockBatchRepo) GetByID(ctx context.Context, batchID id.ID) (*Batch, error) {
	b, ok := m.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("insuree_batch", batchID.String())
	}
	return b, nil
}

func (m *mockBatchRepo) List(ctx context.Context, limit, offset int) ([]*Summary, error) {
	return nil, nil
}

func (m *mockBatchRepo) InsertNumber(ctx context.Context, n *Number) error {
	m.insertCalls++
	if m.duplicateInsert > 0 {
		m.duplicateInsert--
		return apperror.NewDuplicate("insuree_batch_number", "insuree_number", n.InsureeNumber)
	}
	if _, taken := m.numbers[n.InsureeNumber]; taken {
		return apperror.NewDuplicate("insuree_batch_number", "insuree_number", n.InsureeNumber)
	}
	m.numbers[n.InsureeNumber] = n.BatchID
	return nil
}

func (m *mockBatchRepo) NumberExists(ctx context.Context, insureeNumber string) (bool, error) {
	_, ok := m.numbers[insureeNumber]
	return ok, nil
}

func (m *mockBatchRepo) MarkPrinted(ctx context.Context, insureeNumbers []string, printedAt time.Time) (int64, error) {
	return 0, nil
}

type mockLocationRepo struct {
	locations   map[id.ID]*location.Location
	codeLengths map[string]int
}

func (m *mockLocationRepo) GetByID(ctx context.Context, locationID id.ID) (*location.Location, error) {
	loc, ok := m.locations[locationID]
	if !ok {
		return nil, apperror.NewNotFound("location", locationID.String())
	}
	return loc, nil
}

func (m *mockLocationRepo) MaxCodeLength(ctx context.Context, locationType string) (int, error) {
	return m.codeLengths[locationType], nil
}

// allNumbers returns every valid number for the given small format, so
// tests can occupy the whole value space.
func allNumbers(mainWidth, modulo int) []string {
	low := 1
	for i := 1; i < mainWidth; i++ {
		low *= 10
	}
	var numbers []string
	for main := low; main < low*10; main++ {
		numbers = append(numbers, fmt.Sprintf("%0*d%d", mainWidth, main, main%modulo))
	}
	return numbers
}

func newTestService(cfg insuree.NumberConfig, insurees *mockInsureeRepo, repo *mockBatchRepo, locations *mockLocationRepo) *Service {
	if locations == nil {
		locations = &mockLocationRepo{}
	}
	generator := insuree.NewGenerator(cfg, location.NewCodeLengthCache(locations))
	return NewService(repo, insurees, locations, generator)
}

func TestCreate_UniqueNumbers(t *testing.T) {
	// Two main digits: 90 possible numbers. Half of them pre-occupied,
	// so the resolver has to skip collisions.
	cfg := insuree.NumberConfig{Length: 3, ModuloRoot: 7}
	existing := make(map[string]bool)
	for _, n := range allNumbers(2, 7)[:45] {
		existing[n] = true
	}

	repo := newMockBatchRepo()
	svc := newTestService(cfg, &mockInsureeRepo{existing: existing}, repo, nil)

	b, err := svc.Create(context.Background(), CreateInput{Amount: 30})
	require.NoError(t, err)
	require.NotNil(t, b)

	// All reserved numbers are distinct (map keys), the requested amount
	// was reserved, and none clashes with a pre-existing insuree.
	assert.Len(t, repo.numbers, 30)
	for n, batchID := range repo.numbers {
		assert.False(t, existing[n], "number %s already belongs to an insuree", n)
		assert.Equal(t, b.ID, batchID)
		assert.NoError(t, insuree.ValidateNumber(cfg, n))
	}
}

func TestCreate_GenerationExhausted(t *testing.T) {
	// One main digit: 9 possible numbers, all taken.
	cfg := insuree.NumberConfig{Length: 2, ModuloRoot: 7}
	existing := make(map[string]bool)
	for _, n := range allNumbers(1, 7) {
		existing[n] = true
	}

	repo := newMockBatchRepo()
	svc := newTestService(cfg, &mockInsureeRepo{existing: existing}, repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{Amount: 1})
	require.Error(t, err)
	assert.True(t, apperror.IsGenerationExhausted(err))

	// The batch row itself was created before generation started.
	assert.Len(t, repo.batches, 1)
	assert.Empty(t, repo.numbers)
}

func TestCreate_PartialBatchKeptOnExhaustion(t *testing.T) {
	// Exactly one free number: the first reservation succeeds, the
	// second exhausts. The committed number must survive.
	cfg := insuree.NumberConfig{Length: 2, ModuloRoot: 7}
	all := allNumbers(1, 7)
	existing := make(map[string]bool)
	for _, n := range all[1:] {
		existing[n] = true
	}

	repo := newMockBatchRepo()
	svc := newTestService(cfg, &mockInsureeRepo{existing: existing}, repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{Amount: 2})
	require.Error(t, err)
	assert.True(t, apperror.IsGenerationExhausted(err))

	require.Len(t, repo.numbers, 1)
	_, reserved := repo.numbers[all[0]]
	assert.True(t, reserved, "the one free number should have been reserved")

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 1, appErr.Details["generated"])
}

func TestCreate_RetriesDuplicateInsert(t *testing.T) {
	// A concurrent generator wins the insert race once; the next
	// candidate goes through.
	cfg := insuree.NumberConfig{Length: 9, ModuloRoot: 7}
	repo := newMockBatchRepo()
	repo.duplicateInsert = 1
	svc := newTestService(cfg, &mockInsureeRepo{existing: map[string]bool{}}, repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{Amount: 1})
	require.NoError(t, err)
	assert.Len(t, repo.numbers, 1)
	assert.Equal(t, 2, repo.insertCalls)
}

func TestCreate_StoreErrorCarriesBatchID(t *testing.T) {
	// A plain store failure must still name the partial batch, so the
	// caller can find what was committed before the error.
	cfg := insuree.NumberConfig{Length: 9, ModuloRoot: 7}
	repo := newMockBatchRepo()
	insurees := &mockInsureeRepo{existsErr: errors.New("store down")}
	svc := newTestService(cfg, insurees, repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{Amount: 1})
	require.Error(t, err)
	require.Len(t, repo.batches, 1)

	var created *Batch
	for _, b := range repo.batches {
		created = b
	}
	assert.Contains(t, err.Error(), created.ID.String())
	assert.ErrorContains(t, err, "store down")
}

func TestCreate_InvalidLocationCode(t *testing.T) {
	cfg := insuree.NumberConfig{Length: 9, ModuloRoot: 7}
	locID := id.New()
	locations := &mockLocationRepo{
		locations: map[id.ID]*location.Location{
			locID: {ID: locID, Type: "V", Code: "ABC"},
		},
		codeLengths: map[string]int{"V": 3},
	}

	repo := newMockBatchRepo()
	svc := newTestService(cfg, &mockInsureeRepo{existing: map[string]bool{}}, repo, locations)

	_, err := svc.Create(context.Background(), CreateInput{Amount: 1, LocationID: &locID})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeLocationCodeInvalid, appErr.Code)

	// Bad reference data is not retried.
	assert.Empty(t, repo.numbers)
	assert.Equal(t, 0, repo.insertCalls)
}

func TestCreate_LocationEncodedNumbers(t *testing.T) {
	cfg := insuree.NumberConfig{Length: 9, ModuloRoot: 7}
	locID := id.New()
	locations := &mockLocationRepo{
		locations: map[id.ID]*location.Location{
			locID: {ID: locID, Type: "V", Code: "42"},
		},
		codeLengths: map[string]int{"V": 2},
	}

	repo := newMockBatchRepo()
	svc := newTestService(cfg, &mockInsureeRepo{existing: map[string]bool{}}, repo, locations)

	b, err := svc.Create(context.Background(), CreateInput{Amount: 5, LocationID: &locID})
	require.NoError(t, err)
	require.Equal(t, &locID, b.LocationID)

	for n := range repo.numbers {
		assert.Equal(t, "42", n[:2], "number %s should start with the location code", n)
	}
}

func TestCreate_AmountValidation(t *testing.T) {
	cfg := insuree.NumberConfig{Length: 9, ModuloRoot: 7}
	repo := newMockBatchRepo()
	svc := newTestService(cfg, &mockInsureeRepo{existing: map[string]bool{}}, repo, nil)

	for _, amount := range []int{0, -1} {
		_, err := svc.Create(context.Background(), CreateInput{Amount: amount})
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	}
	assert.Empty(t, repo.batches)
}

func TestCreate_AuditUserFromContext(t *testing.T) {
	cfg := insuree.NumberConfig{Length: 9, ModuloRoot: 7}
	repo := newMockBatchRepo()
	svc := newTestService(cfg, &mockInsureeRepo{existing: map[string]bool{}}, repo, nil)

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-1", AuditUserID: 77})
	b, err := svc.Create(ctx, CreateInput{Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, 77, b.AuditUserID)
}
