package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var ctx = context.Background()

func TestRecorder_Write(t *testing.T) {
	rec := NewRecorder(nil)

	err := rec.Write(ctx, Record{Timestamp: epoch, Status: 200, Key: "1.2.3.4", Path: "/"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rec.Len())
	}
}

func TestRecorder_Records_ReturnsCopy(t *testing.T) {
	rec := NewRecorder(nil)
	rec.Write(ctx, Record{Timestamp: epoch, Key: "1.2.3.4", Path: "/"})

	records := rec.Records()
	records[0].Key = "mutated"

	if rec.Records()[0].Key != "1.2.3.4" {
		t.Error("Records() should return a copy, original was mutated")
	}
}

func TestRecorder_StreamToWriter(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)

	rec.Write(ctx, Record{Timestamp: epoch, Status: 200, Key: "1.2.3.4", Path: "/"})
	rec.Write(ctx, Record{Timestamp: epoch, Status: 429, Key: "5.6.7.8", Path: "/"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var r Record
	json.Unmarshal(lines[1], &r)
	if r.Key != "5.6.7.8" || r.Status != 429 {
		t.Errorf("second record = %+v", r)
	}
}

func TestRecorder_ExportFile(t *testing.T) {
	rec := NewRecorder(nil)
	rec.Write(ctx, Record{Timestamp: epoch, Status: 200, Key: "1.2.3.4", Path: "/", Country: "PT"})

	path := filepath.Join(t.TempDir(), "records.json")
	if err := rec.ExportFile(path); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	var records []Record
	json.Unmarshal(data, &records)
	if len(records) != 1 || records[0].Country != "PT" {
		t.Fatalf("exported %+v", records)
	}
}

func TestRecorder_ExportEmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRecorder(nil).ExportJSON(&buf); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty export = %q, want []", buf.String())
	}
}

func TestLoadJSON_Array(t *testing.T) {
	input := `  [
		{"timestamp": "2024-01-01T00:00:00Z", "status": 200, "key": "1.2.3.4", "path": "/"},
		{"timestamp": "2024-01-01T00:00:01Z", "status": 429, "key": "1.2.3.4", "path": "/"}
	]`

	records, err := LoadJSON(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("loaded %d records, want 2", len(records))
	}
	if records[1].Status != 429 {
		t.Errorf("records[1].Status = %d, want 429", records[1].Status)
	}
}

func TestLoadJSON_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	rec.Write(ctx, Record{Timestamp: epoch, Status: 200, Key: "a", Path: "/"})
	rec.Write(ctx, Record{Timestamp: epoch.Add(time.Second), Status: 404, Key: "b", Path: "/x"})

	records, err := LoadJSON(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Path != "/x" {
		t.Fatalf("loaded %+v", records)
	}
}

func TestLoadJSON_Empty(t *testing.T) {
	records, err := LoadJSON(strings.NewReader("\n  \n"))
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("loaded %d records from empty input", len(records))
	}
}

func TestLoadJSON_Malformed(t *testing.T) {
	if _, err := LoadJSON(strings.NewReader(`{"status": 200}` + "\n" + `{oops`)); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestLoadFile_Roundtrip(t *testing.T) {
	rec := NewRecorder(nil)
	rec.Write(ctx, Record{Timestamp: epoch, Status: 200, Key: "a", Path: "/", Org: "AS13335 Cloudflare"})
	rec.Write(ctx, Record{Timestamp: epoch.Add(5 * time.Second), Status: 429, Key: "b", Path: "/"})

	path := filepath.Join(t.TempDir(), "records.json")
	rec.ExportFile(path)

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("roundtrip: got %d records, want 2", len(loaded))
	}
	if loaded[0].Org != "AS13335 Cloudflare" {
		t.Error("org not preserved in roundtrip")
	}
}

func TestRecorder_ConcurrentAccess(t *testing.T) {
	rec := NewRecorder(nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Write(ctx, Record{Timestamp: epoch, Key: "k", Path: "/"})
		}()
	}
	wg.Wait()

	if rec.Len() != 100 {
		t.Errorf("Len() = %d, want 100", rec.Len())
	}
}

func TestStreamSink_WritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamSink(&buf)
	s.Write(ctx, Record{Timestamp: epoch, Status: 200, Key: "a", Path: "/"})
	s.Write(ctx, Record{Timestamp: epoch.Add(time.Second), Status: 429, Key: "a", Path: "/"})

	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("lines = %d, want 2", n)
	}
	loaded, err := LoadJSON(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[1].Status != 429 {
		t.Errorf("loaded = %+v", loaded)
	}
}
