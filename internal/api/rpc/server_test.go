package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fieldclone/internal/backup"
	"github.com/scrypster/fieldclone/internal/config"
	"github.com/scrypster/fieldclone/internal/engine"
	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/internal/storage/sqlite"
	"github.com/scrypster/fieldclone/pkg/types"
)

// apiFixture wires the full stack behind an HTTP handler.
type apiFixture struct {
	store    *sqlite.Store
	handler  http.Handler
	sourceID int64
	targetID int64
}

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{Mode: "development"},
		Limits:   config.LimitsConfig{RequestsPerSec: 1000, Burst: 1000},
	}
}

// newAPIFixture seeds two same-schema entities and serves the API over
// them. Backups are enabled unless withBackups is false.
func newAPIFixture(t *testing.T, cfg *config.Config, withBackups bool) *apiFixture {
	t.Helper()

	store, err := sqlite.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	groups := []storage.FieldGroup{{
		Key:   "group_content",
		Title: "Content",
		Fields: []types.FieldDescriptor{
			{Key: "field_price", Name: "price", Label: "Price", Type: types.FieldNumber},
			{Key: "field_gallery", Name: "gallery", Label: "Gallery", Type: types.FieldAttachmentList},
		},
	}}
	require.NoError(t, store.RegisterSchema(ctx, "post", groups))

	sourceID, err := store.CreateEntity(ctx, "post", "", "Source post")
	require.NoError(t, err)
	targetID, err := store.CreateEntity(ctx, "post", "", "Target post")
	require.NoError(t, err)

	require.NoError(t, store.SetValue(ctx, sourceID, "field_price", float64(42)))
	require.NoError(t, store.SetValue(ctx, targetID, "field_gallery", []any{float64(5)}))

	walker, err := engine.NewFieldSchemaWalker(store, store, store)
	require.NoError(t, err)

	var backupAPI BackupAPI
	orchestratorOpts := []engine.OrchestratorOption{}
	if withBackups {
		backupStore, err := sqlite.NewBackupStore(store.DB())
		require.NoError(t, err)
		service, err := backup.NewService(backupStore, store, walker, backup.RetentionPolicy{MaxCount: 50})
		require.NoError(t, err)
		backupAPI = service
		orchestratorOpts = append(orchestratorOpts, engine.WithBackups(service))
	}

	orch, err := engine.NewCloneOrchestrator(walker, engine.NewValueTransformer(store), store, store, orchestratorOpts...)
	require.NoError(t, err)

	server, err := NewServer(orch, store, backupAPI, engine.AllowAll{}, cfg)
	require.NoError(t, err)

	return &apiFixture{store: store, handler: server.Routes(), sourceID: sourceID, targetID: targetID}
}

// do runs one request through the handler as actor 1.
func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Actor-ID", "1")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestListSources(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)

	rec := f.do(t, http.MethodGet, "/api/clone/sources?schema_id=post&exclude="+itoa(f.targetID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ListSourcesResponse](t, rec)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, f.sourceID, resp.Candidates[0].EntityID)
	assert.Equal(t, "Source post", resp.Candidates[0].Title)
	require.NotNil(t, resp.Candidates[0].Stats)
	assert.Equal(t, 1, resp.Candidates[0].Stats.FieldsWithValues)
}

func TestListSourcesRequiresSchema(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)

	rec := f.do(t, http.MethodGet, "/api/clone/sources", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)
	ctx := context.Background()
	require.NoError(t, f.store.SetValue(ctx, f.sourceID, "field_gallery", []any{float64(9)}))

	rec := f.do(t, http.MethodGet,
		"/api/clone/preview?source="+itoa(f.sourceID)+"&target="+itoa(f.targetID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[PreviewResponse](t, rec)
	require.Len(t, resp.Groups, 1)

	byKey := map[string]FieldPreview{}
	for _, fp := range resp.Groups[0].Fields {
		byKey[fp.Key] = fp
	}

	price := byKey["field_price"]
	assert.True(t, price.HasValue)
	assert.False(t, price.WillOverwrite)

	// The target already holds a gallery value.
	gallery := byKey["field_gallery"]
	assert.True(t, gallery.HasValue)
	assert.True(t, gallery.WillOverwrite)

	require.NotNil(t, resp.SourceStats)
	require.NotNil(t, resp.TargetStats)
}

func TestPreviewUnknownEntity(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)

	rec := f.do(t, http.MethodGet, "/api/clone/preview?source=9999&target="+itoa(f.targetID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatistics(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)

	rec := f.do(t, http.MethodGet, "/api/clone/statistics?entity="+itoa(f.sourceID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode[types.FieldStatistics](t, rec)
	assert.Equal(t, 1, stats.TotalGroups)
	assert.Equal(t, 1, stats.FieldsWithValues)
}

func TestValidate(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)

	rec := f.do(t, http.MethodPost, "/api/clone/validate", ValidateRequest{
		SourceEntityID: f.sourceID,
		TargetEntityID: f.targetID,
		FieldKeys:      []string{"field_price", "field_ghost"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	analysis := decode[types.SelectionAnalysis](t, rec)
	assert.True(t, analysis.CanProceed)
	assert.Equal(t, []string{"field_price"}, analysis.ValidFields)
	assert.Contains(t, analysis.Warnings, "field field_ghost not found in source")
}

func TestExecute(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)

	rec := f.do(t, http.MethodPost, "/api/clone/execute", ExecuteRequest{
		SourceEntityID: f.sourceID,
		TargetEntityID: f.targetID,
		FieldKeys:      []string{"field_price"},
		Options:        types.CloneOptions{OverwriteExisting: true},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	outcome := decode[types.CloneOutcome](t, rec)
	assert.True(t, outcome.Success)
	assert.Equal(t, []string{"field_price"}, outcome.ClonedFields)

	v, ok, err := f.store.GetValue(context.Background(), f.targetID, "field_price")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(42), v)
}

func TestExecuteInvalidBody(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)

	req := httptest.NewRequest(http.MethodPost, "/api/clone/execute", bytes.NewBufferString("{"))
	req.Header.Set("X-Actor-ID", "1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackupLifecycle(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)
	require.NoError(t, f.store.SetValue(context.Background(), f.sourceID, "field_gallery", []any{float64(9)}))

	// A clone with backups enabled snapshots the target's gallery
	// before overwriting it.
	rec := f.do(t, http.MethodPost, "/api/clone/execute", ExecuteRequest{
		SourceEntityID: f.sourceID,
		TargetEntityID: f.targetID,
		FieldKeys:      []string{"field_gallery"},
		Options:        types.CloneOptions{OverwriteExisting: true, CreateBackup: true},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/backups?target="+itoa(f.targetID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]*types.BackupRecord](t, rec)
	require.Len(t, records, 1)
	backupID := records[0].BackupID

	// Restore puts the original gallery back.
	rec = f.do(t, http.MethodPost, "/api/backups/"+backupID+"/restore", RestoreRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[types.RestoreResult](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"field_gallery"}, result.RestoredFields)

	v, _, err := f.store.GetValue(context.Background(), f.targetID, "field_gallery")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(5)}, v)

	rec = f.do(t, http.MethodDelete, "/api/backups/"+backupID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/backups/"+backupID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestoreMalformedID(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)

	rec := f.do(t, http.MethodPost, "/api/backups/not-a-backup/restore", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSweep(t *testing.T) {
	f := newAPIFixture(t, testConfig(), true)

	rec := f.do(t, http.MethodPost, "/api/backups/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[map[string]int](t, rec)
	assert.Equal(t, 0, resp["deleted"])
}

func TestBackupRoutesDisabled(t *testing.T) {
	f := newAPIFixture(t, testConfig(), false)

	rec := f.do(t, http.MethodGet, "/api/backups?target="+itoa(f.targetID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/backups/sweep", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductionModeRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Security.Mode = "production"
	cfg.Security.APIToken = "secret"
	f := newAPIFixture(t, cfg, true)

	rec := f.do(t, http.MethodGet, "/api/clone/statistics?entity="+itoa(f.sourceID), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/clone/statistics?entity="+itoa(f.sourceID), nil)
	req.Header.Set("X-Actor-ID", "1")
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/clone/statistics?entity="+itoa(f.sourceID), nil)
	req.Header.Set("X-Actor-ID", "1")
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.RequestsPerSec = 1
	cfg.Limits.Burst = 2
	f := newAPIFixture(t, cfg, true)

	path := "/api/clone/statistics?entity=" + itoa(f.sourceID)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, path, nil).Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
