package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeService struct {
	lastRead   ReadQuery
	lastCount  CountQuery
	lastMods   []BeanModification
	lastCreate []BeanData
	deleted    []Key
	readErr    error
	updateErr  error
}

func (f *fakeService) Read(_ context.Context, q ReadQuery) ([]Bean, error) {
	f.lastRead = q
	if f.readErr != nil {
		return nil, f.readErr
	}
	return []Bean{{ID: "a", Version: 1, Values: map[string]any{"n": int64(3), "s": "x"}}}, nil
}

func (f *fakeService) Count(_ context.Context, q CountQuery) (int, error) {
	f.lastCount = q
	return 42, nil
}

func (f *fakeService) Create(_ context.Context, _ []Key, data []BeanData) ([]Bean, error) {
	f.lastCreate = data
	out := make([]Bean, len(data))
	for i, d := range data {
		out[i] = Bean{ID: "srv-" + d.ClientID, Version: 1, Values: d.Values}
	}
	return out, nil
}

func (f *fakeService) Update(_ context.Context, mods []BeanModification) ([]Bean, error) {
	f.lastMods = mods
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	out := make([]Bean, len(mods))
	for i, m := range mods {
		out[i] = Bean{ID: m.Key.ID, Version: m.Key.Version + 1}
	}
	return out, nil
}

func (f *fakeService) Refresh(_ context.Context, keys []Key) ([]Bean, error) {
	return []Bean{{ID: keys[0].ID, Version: 9}}, nil
}

func (f *fakeService) Delete(_ context.Context, keys []Key) error {
	f.deleted = keys
	return nil
}

func newTestClient(t *testing.T, svc Service) *Client {
	t.Helper()
	server := httptest.NewServer(Handler(svc))
	t.Cleanup(server.Close)
	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return c
}

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q, want http", u.Scheme)
	}
	if u.Host != defaultAPIBind {
		t.Fatalf("host = %q, want %q", u.Host, defaultAPIBind)
	}

	u, err = parseBaseURL("http://example.com:1234/path?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func TestClient_RoundTripsEveryEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	c := newTestClient(t, svc)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	query := ReadQuery{
		Filters:  []Filter{{Property: "n", Op: OpGreater, Value: int64(2)}},
		Sort:     []SortKey{{Property: "s", Descending: true}},
		FirstRow: 1000,
		MaxRows:  1000,
	}
	beans, err := c.Read(ctx, query)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	want := []Bean{{ID: "a", Version: 1, Values: map[string]any{"n": int64(3), "s": "x"}}}
	if diff := cmp.Diff(want, beans); diff != "" {
		t.Fatalf("Read mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(query, svc.lastRead); diff != "" {
		t.Fatalf("server saw different query (-want +got):\n%s", diff)
	}

	n, err := c.Count(ctx, CountQuery{Filters: query.Filters})
	if err != nil || n != 42 {
		t.Fatalf("Count = %d, %v; want 42, nil", n, err)
	}

	created, err := c.Create(ctx, nil, []BeanData{{ClientID: "c1", Values: map[string]any{"s": "new"}}})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(created) != 1 || created[0].ID != "srv-c1" {
		t.Fatalf("Create = %#v, want srv-c1", created)
	}

	mods := []BeanModification{{Key: Key{ID: "a", Version: 1}, Changes: []Change{{Property: "n", Old: int64(3), New: int64(4)}}}}
	updated, err := c.Update(ctx, mods)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if len(updated) != 1 || updated[0].Version != 2 {
		t.Fatalf("Update = %#v, want version 2", updated)
	}
	if diff := cmp.Diff(mods, svc.lastMods); diff != "" {
		t.Fatalf("server saw different mods (-want +got):\n%s", diff)
	}

	refreshed, err := c.Refresh(ctx, []Key{{ID: "a", Version: 1}})
	if err != nil || len(refreshed) != 1 || refreshed[0].Version != 9 {
		t.Fatalf("Refresh = %#v, %v; want version 9", refreshed, err)
	}

	if err := c.Delete(ctx, []Key{{ID: "a", Version: 2}}); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(svc.deleted) != 1 || svc.deleted[0].ID != "a" {
		t.Fatalf("server deleted %#v, want key a", svc.deleted)
	}
}

func TestClient_MapsErrorKinds(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		readErr: ErrNotFound,
		updateErr: &BatchError{Failures: map[string]error{
			"a": ErrStale,
		}},
	}
	c := newTestClient(t, svc)
	ctx := context.Background()

	if _, err := c.Read(ctx, ReadQuery{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read err = %v, want ErrNotFound", err)
	}

	_, err := c.Update(ctx, []BeanModification{{Key: Key{ID: "a"}}})
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("Update err = %v, want *BatchError", err)
	}
	if !errors.Is(batch.ErrorFor("a"), ErrStale) {
		t.Fatalf("ErrorFor(a) = %v, want ErrStale", batch.ErrorFor("a"))
	}
	if !errors.Is(err, ErrStale) {
		t.Fatalf("errors.Is(err, ErrStale) = false for %v", err)
	}
}

func TestClient_UnknownErrorBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.Count(context.Background(), CountQuery{})
	if err == nil || err.Error() != "api /api/count returned status 502" {
		t.Fatalf("Count err = %v, want status 502 error", err)
	}
}
