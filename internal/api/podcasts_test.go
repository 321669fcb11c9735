package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcastle/pkg/backend"
	"podcastle/pkg/library"
	"podcastle/pkg/model"
	"podcastle/pkg/registry"
)

// fakeBackend scripts the generation backend.
type fakeBackend struct {
	createJob  *model.Job
	createErr  error
	deleteErr  error
	deleted    []string
	categories []model.Category
	catErr     error
}

func (f *fakeBackend) Create(_ context.Context, req *model.CreateRequest) (*model.Job, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createJob, nil
}

func (f *fakeBackend) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeBackend) Categories(_ context.Context) ([]model.Category, error) {
	return f.categories, f.catErr
}

func newPodcastRig(b *fakeBackend) (*PodcastHandler, *library.Library, *registry.Registry) {
	reg := registry.New(nil)
	lib := library.New(reg, nil, 10*time.Second)
	return NewPodcastHandler(b, lib, reg), lib, reg
}

func TestHandleCreate(t *testing.T) {
	fb := &fakeBackend{createJob: &model.Job{
		ID:        "9f1c2e30-6a1f-4a6a-9d7a-2f91a3a1f001",
		Topic:     "deep sea mining",
		State:     model.StateQueued,
		CreatedAt: time.Now(),
	}}
	h, lib, reg := newPodcastRig(fb)

	req := httptest.NewRequest(http.MethodPost, "/api/podcasts",
		strings.NewReader(`{"topic":"deep sea mining","category_id":"science","duration":10}`))
	w := httptest.NewRecorder()
	h.HandleCreate(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var job model.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, model.StateQueued, job.State)

	assert.NotNil(t, lib.Get(job.ID), "accepted job lands in the library")
	assert.True(t, reg.Contains(job.ID), "accepted job is polled")
}

func TestHandleCreate_Validation(t *testing.T) {
	h, _, _ := newPodcastRig(&fakeBackend{})

	w := httptest.NewRecorder()
	h.HandleCreate(w, httptest.NewRequest(http.MethodPost, "/api/podcasts", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.HandleCreate(w, httptest.NewRequest(http.MethodPost, "/api/podcasts", strings.NewReader(`{"category_id":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreate_Unauthorized(t *testing.T) {
	h, _, _ := newPodcastRig(&fakeBackend{createErr: backend.ErrUnauthorized})

	w := httptest.NewRecorder()
	h.HandleCreate(w, httptest.NewRequest(http.MethodPost, "/api/podcasts", strings.NewReader(`{"topic":"x"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleList(t *testing.T) {
	h, lib, _ := newPodcastRig(&fakeBackend{})
	ctx := context.Background()
	lib.Add(ctx, &model.Job{ID: "a", State: model.StateGenerating, CreatedAt: time.Now()})
	lib.Add(ctx, &model.Job{ID: "b", State: model.StateCompleted, CategoryID: "science", CreatedAt: time.Now()})

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/podcasts", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var view library.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Len(t, view.Active, 1)
	assert.Len(t, view.Completed, 1)

	w = httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/podcasts?view=by_category", nil))
	var grouped map[string][]model.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grouped))
	assert.Len(t, grouped["science"], 1)
}

func TestHandleGet(t *testing.T) {
	h, lib, _ := newPodcastRig(&fakeBackend{})
	lib.Add(context.Background(), &model.Job{ID: "a", State: model.StateCompleted})

	req := httptest.NewRequest(http.MethodGet, "/api/podcasts/a", nil)
	req.SetPathValue("id", "a")
	w := httptest.NewRecorder()
	h.HandleGet(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/podcasts/nope", nil)
	req.SetPathValue("id", "nope")
	w = httptest.NewRecorder()
	h.HandleGet(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDelete_Optimistic(t *testing.T) {
	fb := &fakeBackend{deleteErr: backend.ErrTransient}
	h, lib, reg := newPodcastRig(fb)
	ctx := context.Background()
	lib.Add(ctx, &model.Job{ID: "a", State: model.StateGenerating})
	reg.Register(ctx, "a", model.StateGenerating)

	req := httptest.NewRequest(http.MethodDelete, "/api/podcasts/a", nil)
	req.SetPathValue("id", "a")
	w := httptest.NewRecorder()
	h.HandleDelete(w, req)

	// The slow/failed confirmation does not bring the job back
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, lib.Get("a"))
	assert.False(t, reg.Contains("a"))
	assert.Equal(t, []string{"a"}, fb.deleted)
}

func TestHandleDelete_RollbackOnRejection(t *testing.T) {
	fb := &fakeBackend{deleteErr: backend.ErrUnauthorized}
	h, lib, reg := newPodcastRig(fb)
	ctx := context.Background()
	lib.Add(ctx, &model.Job{ID: "a", State: model.StateGenerating})
	reg.Register(ctx, "a", model.StateGenerating)

	req := httptest.NewRequest(http.MethodDelete, "/api/podcasts/a", nil)
	req.SetPathValue("id", "a")
	w := httptest.NewRecorder()
	h.HandleDelete(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotNil(t, lib.Get("a"), "definitive rejection rolls the deletion back")
	assert.True(t, reg.Contains("a"))
}

func TestHandleDelete_Unknown(t *testing.T) {
	h, _, _ := newPodcastRig(&fakeBackend{})

	req := httptest.NewRequest(http.MethodDelete, "/api/podcasts/x", nil)
	req.SetPathValue("id", "x")
	w := httptest.NewRecorder()
	h.HandleDelete(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCategories(t *testing.T) {
	h, _, _ := newPodcastRig(&fakeBackend{categories: []model.Category{
		{ID: "science", Name: "Science"},
	}})

	w := httptest.NewRecorder()
	h.HandleCategories(w, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var cats []model.Category
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cats))
	require.Len(t, cats, 1)
	assert.Equal(t, "Science", cats[0].Name)
}
