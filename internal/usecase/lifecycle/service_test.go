package lifecycle

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alcove-sh/alcove/internal/domain"
)

// fakeRegistry is an in-memory AddonRegistry faithful to the port contract.
type fakeRegistry struct {
	mu      sync.Mutex
	records map[string]*domain.AddonRecord
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: make(map[string]*domain.AddonRecord)}
}

func (f *fakeRegistry) Create(ctx context.Context, record *domain.AddonRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *record
	f.records[record.ID] = &clone
	return nil
}

func (f *fakeRegistry) Get(ctx context.Context, id string) (*domain.AddonRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, domain.ErrAddonNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeRegistry) Update(ctx context.Context, id string, patch domain.AddonPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return domain.ErrAddonNotFound
	}
	if patch.Status != nil {
		record.Status = *patch.Status
	}
	if patch.ContainerRef != nil {
		record.ContainerRef = *patch.ContainerRef
	}
	if patch.InternalEndpoint != nil {
		record.InternalEndpoint = *patch.InternalEndpoint
	}
	if patch.LastError != nil {
		record.LastError = *patch.LastError
	}
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeRegistry) ListForOwner(ctx context.Context, ownerID string) ([]*domain.AddonRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.AddonRecord
	for _, record := range f.records {
		if record.OwnerID == ownerID {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRegistry) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeRuntime counts engine calls and fails on demand.
type fakeRuntime struct {
	mu          sync.Mutex
	createCalls int
	stopCalls   int
	removeCalls int
	lastSpec    domain.LaunchSpec

	createErr error
	stopErr   error
	removeErr error
	stopDelay time.Duration
}

func (f *fakeRuntime) CreateAndStart(ctx context.Context, spec domain.LaunchSpec) (string, string, error) {
	f.mu.Lock()
	f.createCalls++
	f.lastSpec = spec
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return "", "", err
	}
	return "container-ref-1", "127.0.0.1:49200", nil
}

func (f *fakeRuntime) Stop(ctx context.Context, ref string) error {
	f.mu.Lock()
	f.stopCalls++
	err := f.stopErr
	delay := f.stopDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *fakeRuntime) Remove(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	return f.removeErr
}

func (f *fakeRuntime) FetchLogs(ctx context.Context, ref string, tail int) ([]string, error) {
	return nil, nil
}

func (f *fakeRuntime) InspectState(ctx context.Context, ref string) (domain.ContainerState, error) {
	return domain.ContainerStateRunning, nil
}

func (f *fakeRuntime) Ping(ctx context.Context) error { return nil }
func (f *fakeRuntime) Close() error                   { return nil }

func (f *fakeRuntime) counts() (create, stop, remove int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.stopCalls, f.removeCalls
}

// fakeCatalog resolves a fixed set of image descriptors.
type fakeCatalog struct {
	descriptors map[string]domain.AvailableAddon
}

func (f *fakeCatalog) Available(ctx context.Context) ([]domain.AvailableAddon, error) {
	return nil, nil
}

func (f *fakeCatalog) Find(image string) (domain.AvailableAddon, bool) {
	descriptor, ok := f.descriptors[image]
	return descriptor, ok
}

func newService(registry *fakeRegistry, runtime *fakeRuntime, catalog *fakeCatalog) *Service {
	if catalog == nil {
		catalog = &fakeCatalog{}
	}
	return NewService(registry, runtime, catalog, Config{
		InstallTimeout: 5 * time.Second,
		StopTimeout:    5 * time.Second,
	}, log.New(os.Stderr))
}

func seedRunning(t *testing.T, registry *fakeRegistry, id, owner string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, registry.Create(context.Background(), &domain.AddonRecord{
		ID:               id,
		OwnerID:          owner,
		DisplayName:      "notes",
		SourceImage:      "ghcr.io/acme/notes-svc:1.2",
		Status:           domain.AddonStatusRunning,
		ContainerRef:     "container-ref-1",
		InternalEndpoint: "127.0.0.1:49200",
		CreatedAt:        now,
		UpdatedAt:        now,
	}))
}

func TestInstallValidation(t *testing.T) {
	tests := []struct {
		name  string
		image string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"inner whitespace", "redis 7"},
		{"newline", "redis\n:7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newFakeRegistry()
			svc := newService(registry, &fakeRuntime{}, nil)

			record, err := svc.Install(context.Background(), "alice", tt.image)
			assert.ErrorIs(t, err, domain.ErrInvalidImage)
			assert.Nil(t, record)
			assert.Zero(t, registry.count(), "validation failures must not create records")
		})
	}
}

func TestInstallSuccess(t *testing.T) {
	registry := newFakeRegistry()
	runtime := &fakeRuntime{}
	svc := newService(registry, runtime, nil)

	record, err := svc.Install(context.Background(), "alice", "ghcr.io/acme/notes-svc:1.2")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, domain.AddonStatusRunning, record.Status)
	assert.Equal(t, "alice", record.OwnerID)
	assert.Equal(t, "notes-svc", record.DisplayName)
	assert.Equal(t, "container-ref-1", record.ContainerRef)
	assert.Equal(t, "127.0.0.1:49200", record.InternalEndpoint)
	assert.Empty(t, record.LastError)
	assert.NotEmpty(t, record.ID)

	spec := runtime.lastSpec
	assert.True(t, strings.HasPrefix(spec.Name, domain.ContainerNamePrefix))
	assert.Equal(t, "true", spec.Labels[domain.LabelManaged])
	assert.Equal(t, record.ID, spec.Labels[domain.LabelAddonID])
	assert.Equal(t, "alice", spec.Labels[domain.LabelOwner])
	assert.Zero(t, spec.InternalPort, "no catalog entry means port autodetection")
}

func TestInstallUsesCatalogDescriptor(t *testing.T) {
	registry := newFakeRegistry()
	runtime := &fakeRuntime{}
	catalog := &fakeCatalog{descriptors: map[string]domain.AvailableAddon{
		"ghcr.io/acme/notes-svc:1.2": {Name: "notes", Image: "ghcr.io/acme/notes-svc:1.2", InternalPort: 8080},
	}}
	svc := newService(registry, runtime, catalog)

	record, err := svc.Install(context.Background(), "alice", "ghcr.io/acme/notes-svc:1.2")
	require.NoError(t, err)

	assert.Equal(t, "notes", record.DisplayName)
	assert.Equal(t, 8080, runtime.lastSpec.InternalPort)
}

func TestInstallEngineFailureRetainsFailedRecord(t *testing.T) {
	registry := newFakeRegistry()
	runtime := &fakeRuntime{createErr: errors.New("image pull access denied")}
	svc := newService(registry, runtime, nil)

	record, err := svc.Install(context.Background(), "alice", "ghcr.io/acme/private:1")
	require.NoError(t, err, "engine failures travel in the record, not the error")
	require.NotNil(t, record)

	assert.Equal(t, domain.AddonStatusFailed, record.Status)
	assert.Contains(t, record.LastError, "image pull access denied")
	assert.Empty(t, record.ContainerRef)
	assert.Empty(t, record.InternalEndpoint)

	stored, err := registry.Get(context.Background(), record.ID)
	require.NoError(t, err, "failed install must stay visible for diagnosis")
	assert.Equal(t, domain.AddonStatusFailed, stored.Status)
}

func TestStopHappyPath(t *testing.T) {
	registry := newFakeRegistry()
	runtime := &fakeRuntime{}
	svc := newService(registry, runtime, nil)
	seedRunning(t, registry, "a1", "alice")

	record, err := svc.Stop(context.Background(), "alice", "a1")
	require.NoError(t, err)

	assert.Equal(t, domain.AddonStatusStopped, record.Status)
	assert.Empty(t, record.ContainerRef)
	assert.Empty(t, record.InternalEndpoint)
	assert.Empty(t, record.LastError)

	_, stops, removes := runtime.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, removes)
}

func TestStopRejectsNonRunning(t *testing.T) {
	states := []domain.AddonStatus{
		domain.AddonStatusInstalling,
		domain.AddonStatusStopping,
		domain.AddonStatusStopped,
		domain.AddonStatusFailed,
	}
	for _, status := range states {
		t.Run(string(status), func(t *testing.T) {
			registry := newFakeRegistry()
			runtime := &fakeRuntime{}
			svc := newService(registry, runtime, nil)
			seedRunning(t, registry, "a1", "alice")
			st := status
			require.NoError(t, registry.Update(context.Background(), "a1", domain.AddonPatch{Status: &st}))

			_, err := svc.Stop(context.Background(), "alice", "a1")
			assert.ErrorIs(t, err, domain.ErrAddonNotStoppable)

			_, stops, removes := runtime.counts()
			assert.Zero(t, stops, "rejected stop must not reach the engine")
			assert.Zero(t, removes)
		})
	}
}

func TestOwnershipHiddenAsNotFound(t *testing.T) {
	registry := newFakeRegistry()
	svc := newService(registry, &fakeRuntime{}, nil)
	seedRunning(t, registry, "a1", "alice")

	_, err := svc.Stop(context.Background(), "mallory", "a1")
	assert.ErrorIs(t, err, domain.ErrAddonNotFound)

	_, err = svc.Get(context.Background(), "mallory", "a1")
	assert.ErrorIs(t, err, domain.ErrAddonNotFound)

	_, err = svc.Get(context.Background(), "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrAddonNotFound)
}

func TestStopEngineFailureKeepsContainerRef(t *testing.T) {
	registry := newFakeRegistry()
	runtime := &fakeRuntime{stopErr: errors.New("engine unavailable")}
	svc := newService(registry, runtime, nil)
	seedRunning(t, registry, "a1", "alice")

	record, err := svc.Stop(context.Background(), "alice", "a1")
	require.NoError(t, err, "engine failures travel in the record")

	assert.Equal(t, domain.AddonStatusFailed, record.Status)
	assert.Contains(t, record.LastError, "engine unavailable")
	assert.Equal(t, "container-ref-1", record.ContainerRef,
		"the leftover container must stay addressable for manual cleanup")
	assert.Empty(t, record.InternalEndpoint)
}

func TestStopRemoveFailureKeepsContainerRef(t *testing.T) {
	registry := newFakeRegistry()
	runtime := &fakeRuntime{removeErr: errors.New("device busy")}
	svc := newService(registry, runtime, nil)
	seedRunning(t, registry, "a1", "alice")

	record, err := svc.Stop(context.Background(), "alice", "a1")
	require.NoError(t, err)

	assert.Equal(t, domain.AddonStatusFailed, record.Status)
	assert.Contains(t, record.LastError, "device busy")
	assert.Equal(t, "container-ref-1", record.ContainerRef)
}

func TestConcurrentStopsReachEngineOnce(t *testing.T) {
	registry := newFakeRegistry()
	runtime := &fakeRuntime{stopDelay: 20 * time.Millisecond}
	svc := newService(registry, runtime, nil)
	seedRunning(t, registry, "a1", "alice")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Stop(context.Background(), "alice", "a1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAddonNotStoppable):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one stop wins")
	assert.Equal(t, 1, rejected, "the loser sees a stoppability failure")

	_, stops, _ := runtime.counts()
	assert.Equal(t, 1, stops, "the engine must see exactly one stop")
}

func TestListForOwner(t *testing.T) {
	registry := newFakeRegistry()
	svc := newService(registry, &fakeRuntime{}, nil)
	seedRunning(t, registry, "a1", "alice")
	seedRunning(t, registry, "b1", "bob")

	records, err := svc.ListForOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].ID)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0b1f3c44", shortID("0b1f3c44-dead-beef-0000-111122223333"))
	assert.Equal(t, "tiny", shortID("tiny"))
}
