package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type cliTestEnv struct {
	configPath string
	dataDir    string
	jellyfin   *fakeJellyfin
}

// fakeJellyfin serves a single-page /Items listing and records posted updates.
type fakeJellyfin struct {
	mu     sync.Mutex
	items  []map[string]any
	posted map[string]map[string]any
}

func (f *fakeJellyfin) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/Items":
			selected := f.items
			if ids := r.URL.Query().Get("ids"); ids != "" {
				selected = nil
				for _, item := range f.items {
					if item["Id"] == ids {
						selected = append(selected, item)
					}
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"Items": selected, "TotalRecordCount": len(selected)})
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/Items/"):
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode update: %v", err)
			}
			f.posted[strings.TrimPrefix(r.URL.Path, "/Items/")] = body
			for i, item := range f.items {
				if item["Id"] == body["Id"] {
					f.items[i] = body
				}
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeJellyfin) update(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posted[id]
}

// dtddHandler answers every search with John Wick and serves its detail page.
func dtddHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "dtdd-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/dddsearch":
			fmt.Fprint(w, `{"items":[
				{"id":2,"name":"John Wick","releaseYear":"2014","itemTypeId":15,"verified":true,"numRatings":900},
				{"id":3,"name":"John Wick: Chapter 2","releaseYear":"2017","itemTypeId":15}
			]}`)
		case "/media/2":
			fmt.Fprint(w, `{
				"item":{"id":2,"name":"John Wick","releaseYear":"2014","itemTypeId":15},
				"topicItemStats":[
					{"topic":{"id":153,"name":"a dog dies","TopicCategoryId":1,"TopicCategory":{"id":1,"name":"Animal"}},"yesSum":1336,"noSum":118},
					{"topic":{"id":900,"name":"a negative trigger","TopicCategoryId":9,"TopicCategory":{"id":9,"name":"Other"}},"yesSum":5,"noSum":50}
				]}`)
		default:
			t.Errorf("unexpected dtdd request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("NO_COLOR", "1")

	dtddSrv := httptest.NewServer(dtddHandler(t))
	t.Cleanup(dtddSrv.Close)

	jf := &fakeJellyfin{
		items: []map[string]any{
			{"Id": "m1", "Name": "John Wick", "ProductionYear": 2014, "Type": "Movie", "Tags": []string{"Favorites"}},
		},
		posted: map[string]map[string]any{},
	}
	jfSrv := httptest.NewServer(jf.handler(t))
	t.Cleanup(jfSrv.Close)

	dataDir := filepath.Join(base, "data")
	seedsPath := filepath.Join(base, "seeds.yaml")
	writeFile(t, seedsPath, "seeds:\n  - title: John Wick\n    year: 2014\n")

	configPath := filepath.Join(base, "config.toml")
	writeFile(t, configPath, fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
api_bind = ""

[dtdd]
api_key = "dtdd-key"
base_url = %q
request_delay_ms = 0
max_retries = 0

[jellyfin]
url = %q
api_key = "jf-key"

[index]
seeds_path = %q

[sync]
interval_minutes = 0
run_on_start = false
`, dataDir, filepath.Join(dataDir, "logs"), dtddSrv.URL, jfSrv.URL, seedsPath))

	return &cliTestEnv{configPath: configPath, dataDir: dataDir, jellyfin: jf}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	full := args
	if configPath != "" {
		full = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(full)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func decodeJSON(t *testing.T, raw string, out any) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
}
