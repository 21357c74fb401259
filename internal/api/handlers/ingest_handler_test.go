package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/valgdash/backend/internal/ingestion"
	"github.com/valgdash/backend/internal/schema"
	"github.com/valgdash/backend/internal/storage/models"
	"github.com/valgdash/backend/internal/tabular"
)

const testSecret = "test-secret"

type fakeStore struct {
	inserted  int
	polls     int
	results   int
	pollsters map[string]string
}

func (s *fakeStore) InsertRecord(ctx context.Context, table schema.Table, data tabular.Record) (string, error) {
	s.inserted++
	return fmt.Sprintf("row-%d", s.inserted), nil
}

func (s *fakeStore) GetOrCreatePollster(ctx context.Context, name, code string) (string, error) {
	if s.pollsters == nil {
		s.pollsters = make(map[string]string)
	}
	if id, ok := s.pollsters[name]; ok {
		return id, nil
	}
	id := fmt.Sprintf("pollster-%d", len(s.pollsters)+1)
	s.pollsters[name] = id
	return id, nil
}

func (s *fakeStore) CreatePollWithResults(ctx context.Context, pollsterID, conductedAt string, sampleSize int, methodology string, results []models.PollResult) (string, error) {
	s.polls++
	s.results += len(results)
	return fmt.Sprintf("poll-%d", s.polls), nil
}

type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, bucket, key, endpoint string) (string, error) {
	return f.body, f.err
}

func testApp(store *fakeStore, fetcher *fakeFetcher, secret string) *fiber.App {
	h := NewIngestHandler(ingestion.NewProcessor(store), fetcher, nil, secret)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/ingest", h.IngestFromObjectStore)
	api.Post("/ingest/direct", h.IngestDirect)
	api.Post("/ingest/polls", h.IngestPolls)
	return app
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func decodeSummary(t *testing.T, resp *http.Response) ingestion.Summary {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body = %v", err)
	}
	var summary ingestion.Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("unmarshal %q = %v", body, err)
	}
	return summary
}

func TestIngestRejectsBadToken(t *testing.T) {
	app := testApp(&fakeStore{}, &fakeFetcher{}, testSecret)

	tests := []struct {
		name string
		body string
		auth string
		want int
	}{
		{"wrong body token", `{"bucket":"b","key":"k","table":"polls","secretToken":"wrong"}`, "", fiber.StatusUnauthorized},
		{"missing token", `{"bucket":"b","key":"k","table":"polls"}`, "", fiber.StatusUnauthorized},
		{"wrong bearer token", `{"bucket":"b","key":"k","table":"polls"}`, "Bearer wrong", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(fiber.MethodPost, "/api/v1/ingest", tt.body)
			if tt.auth != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.auth)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Test() = %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestIngestMissingSecretIsServerError(t *testing.T) {
	app := testApp(&fakeStore{}, &fakeFetcher{}, "")

	req := jsonRequest(fiber.MethodPost, "/api/v1/ingest", `{"bucket":"b","key":"k","table":"polls","secretToken":"anything"}`)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("status = %d, want 500 for unconfigured secret", resp.StatusCode)
	}
}

func TestIngestRejectsNonPost(t *testing.T) {
	app := testApp(&fakeStore{}, &fakeFetcher{}, testSecret)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/ingest", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestIngestFetchTimeout(t *testing.T) {
	app := testApp(&fakeStore{}, &fakeFetcher{err: ingestion.ErrFetchTimeout}, testSecret)

	req := jsonRequest(fiber.MethodPost, "/api/v1/ingest", `{"bucket":"b","key":"k","table":"polls","secretToken":"test-secret"}`)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusRequestTimeout {
		t.Errorf("status = %d, want 408", resp.StatusCode)
	}
}

func TestIngestObjectTooLarge(t *testing.T) {
	app := testApp(&fakeStore{}, &fakeFetcher{err: ingestion.ErrObjectTooLarge}, testSecret)

	req := jsonRequest(fiber.MethodPost, "/api/v1/ingest", `{"bucket":"b","key":"k","table":"polls","secretToken":"test-secret"}`)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestUnknownTable(t *testing.T) {
	app := testApp(&fakeStore{}, &fakeFetcher{}, testSecret)

	req := jsonRequest(fiber.MethodPost, "/api/v1/ingest", `{"bucket":"b","key":"k","table":"nope","secretToken":"test-secret"}`)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestFromObjectStore(t *testing.T) {
	csv := "slug,name,region,leading_party,vote_share,turnout\n" +
		"koebenhavn,København,hovedstaden,A,31.5,67.2\n" +
		"aarhus,Aarhus,midtjylland,V,29.0,70.1\n"
	store := &fakeStore{}
	app := testApp(store, &fakeFetcher{body: csv}, testSecret)

	req := jsonRequest(fiber.MethodPost, "/api/v1/ingest", `{"bucket":"b","key":"k","table":"municipality_snapshots","secretToken":"test-secret"}`)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	summary := decodeSummary(t, resp)
	if !summary.Success || summary.Inserted != 2 || summary.Total != 2 {
		t.Errorf("summary = %+v, want 2 of 2", summary)
	}
	if store.inserted != 2 {
		t.Errorf("store writes = %d, want 2", store.inserted)
	}
}

func TestIngestDirectPartialSuccess(t *testing.T) {
	store := &fakeStore{}
	app := testApp(store, &fakeFetcher{}, testSecret)

	body := `{
		"table": "municipality_snapshots",
		"secretToken": "test-secret",
		"data": [
			{"slug": "koebenhavn", "name": "København", "region": "hovedstaden", "leadingParty": "A", "voteShare": 31.5, "turnout": 67.2},
			{"slug": "aarhus", "name": "Aarhus", "region": "midtjylland", "leadingParty": "V", "voteShare": "not-a-number", "turnout": 70.1},
			{"slug": "odense", "name": "Odense", "region": "syddanmark", "leadingParty": "A", "voteShare": 28.9, "turnout": 68.4}
		]
	}`
	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/v1/ingest/direct", body))
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 even on partial failure", resp.StatusCode)
	}

	summary := decodeSummary(t, resp)
	if summary.Total != 3 || summary.Inserted != 2 {
		t.Errorf("summary = %+v, want inserted 2 of 3", summary)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "record 2") {
		t.Errorf("Errors = %v, want one naming record 2", summary.Errors)
	}
}

func TestIngestDirectCSVString(t *testing.T) {
	store := &fakeStore{}
	app := testApp(store, &fakeFetcher{}, testSecret)

	body := `{"table":"municipality_snapshots","secretToken":"test-secret","data":"slug,name,region,leading_party,vote_share,turnout\nkoebenhavn,København,hovedstaden,A,31.5,67.2\n"}`
	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/v1/ingest/direct", body))
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if summary := decodeSummary(t, resp); summary.Inserted != 1 {
		t.Errorf("summary = %+v, want 1 inserted", summary)
	}
}

func TestIngestDirectMalformedData(t *testing.T) {
	app := testApp(&fakeStore{}, &fakeFetcher{}, testSecret)

	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/v1/ingest/direct", `{"table":"polls","secretToken":"test-secret","data":""}`))
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400 for empty data", resp.StatusCode)
	}
}

func pollHistoryCSV() string {
	var sb strings.Builder
	sb.WriteString("party_code,poll_date,value,segment,pollster,n\n")
	for _, date := range []string{"2025-06-01", "2025-06-08"} {
		for _, pollster := range []string{"Epinion", "Voxmeter"} {
			for i, party := range []string{"A", "V", "M", "F"} {
				fmt.Fprintf(&sb, "%s,%s,%.1f,all,%s,1000\n", party, date, 20.0+float64(i), pollster)
			}
		}
	}
	return sb.String()
}

func TestIngestPollsRawCSVBody(t *testing.T) {
	store := &fakeStore{}
	app := testApp(store, &fakeFetcher{}, testSecret)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/ingest/polls", strings.NewReader(pollHistoryCSV()))
	req.Header.Set(fiber.HeaderContentType, "text/csv")
	req.Header.Set(fiber.HeaderAuthorization, "Bearer test-secret")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	summary := decodeSummary(t, resp)
	if summary.Inserted != 4 || summary.Total != 4 {
		t.Errorf("summary = %+v, want 4 polls", summary)
	}
	if store.polls != 4 || store.results != 16 {
		t.Errorf("store = %d polls/%d results, want 4/16", store.polls, store.results)
	}
	if len(store.pollsters) != 2 {
		t.Errorf("pollsters = %d, want 2", len(store.pollsters))
	}
}

func TestIngestPollsJSONField(t *testing.T) {
	store := &fakeStore{}
	app := testApp(store, &fakeFetcher{}, testSecret)

	payload, err := json.Marshal(map[string]string{"csvContent": pollHistoryCSV()})
	if err != nil {
		t.Fatalf("marshal = %v", err)
	}
	req := jsonRequest(fiber.MethodPost, "/api/v1/ingest/polls", string(payload))
	req.Header.Set(fiber.HeaderAuthorization, "Convex test-secret")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if store.polls != 4 {
		t.Errorf("polls = %d, want 4", store.polls)
	}
}

func TestIngestPollsMissingContent(t *testing.T) {
	app := testApp(&fakeStore{}, &fakeFetcher{}, testSecret)

	req := jsonRequest(fiber.MethodPost, "/api/v1/ingest/polls", `{}`)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer test-secret")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestPollsChecksAuthBeforeBody(t *testing.T) {
	app := testApp(&fakeStore{}, &fakeFetcher{}, testSecret)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/ingest/polls", strings.NewReader("not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401 before body parsing", resp.StatusCode)
	}
}
