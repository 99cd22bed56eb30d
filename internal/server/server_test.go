package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/config"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/dispatch"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/event"
)

type fakeDispatcher struct {
	completion dispatch.Completion
	err        error
	lastEvent  event.Event
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev event.Event, _ *config.Snapshot) (dispatch.Completion, error) {
	f.lastEvent = ev
	return f.completion, f.err
}

type fakeSnapshots struct{}

func (fakeSnapshots) Snapshot() *config.Snapshot { return &config.Snapshot{} }

const orderCreatedEnvelope = `{
	"notificationType": "Message",
	"id": "E1",
	"type": "OrderCreated",
	"resource": {"typeId": "order", "id": "O1"}
}`

func newTestHandler(d *fakeDispatcher) http.Handler {
	return NewHandler(d, fakeSnapshots{}, zerolog.Nop()).Router()
}

func TestHandleEventComplete(t *testing.T) {
	d := &fakeDispatcher{completion: dispatch.Completion{AllDone: true}}
	rec := httptest.NewRecorder()

	newTestHandler(d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(orderCreatedEnvelope)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "E1", d.lastEvent.ID)
	require.Equal(t, "OrderCreated", d.lastEvent.TriggerType)
	require.Equal(t, "order", d.lastEvent.Resource.TypeID)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["retryRequested"])
}

func TestHandleEventIncompleteRequestsRetry(t *testing.T) {
	d := &fakeDispatcher{completion: dispatch.Completion{AllDone: false}}
	rec := httptest.NewRecorder()

	newTestHandler(d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(orderCreatedEnvelope)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleEventDispatchErrorRequestsRetry(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("resource fetch failed")}
	rec := httptest.NewRecorder()

	newTestHandler(d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(orderCreatedEnvelope)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleEventIgnoresForeignPayload(t *testing.T) {
	d := &fakeDispatcher{}
	rec := httptest.NewRecorder()

	newTestHandler(d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"hello":"world"}`)))

	require.Equal(t, http.StatusOK, rec.Code, "foreign payloads are acknowledged, not redelivered")
	require.Empty(t, d.lastEvent.ID)
}

func TestHandleEventRejectsIncompleteNotification(t *testing.T) {
	d := &fakeDispatcher{}
	rec := httptest.NewRecorder()

	newTestHandler(d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"notificationType":"Message","id":"E1"}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateTemplateEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(&fakeDispatcher{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/templates/validate", strings.NewReader(`{"template":"Hi {{a.}}"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Valid  bool     `json:"valid"`
		Issues []string `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Valid)
	require.NotEmpty(t, body.Issues)
}

func TestSuggestPathsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(&fakeDispatcher{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/templates/suggest", strings.NewReader(`{"sample":{"a":{"b":1},"tags":["x"]}}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Paths []string `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"a.b", "tags[*]"}, body.Paths)
}
