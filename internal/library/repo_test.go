package library

import (
	"os"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "cueflow-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM shows`).Scan(&count); err != nil {
		t.Fatalf("shows table missing: %v", err)
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := ShowRow{
		Path:       "opening.json",
		Name:       "Opening Night",
		Format:     "json",
		Checksum:   "abc123",
		Duration:   120.5,
		TrackCount: 4,
		Protocols:  []string{"dmx", "midi"},
		UpdatedAt:  time.Now(),
	}
	if err := db.UpsertShow(row, "Opening Night wash spots"); err != nil {
		t.Fatalf("UpsertShow: %v", err)
	}
	cs, err := db.GetChecksum("opening.json")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestGetShowRoundTrip(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertShow(ShowRow{
		Path: "a.mpk", Name: "A", Format: "msgpack", Checksum: "1",
		Duration: 30, TrackCount: 2, Protocols: []string{"dmx"}, UpdatedAt: time.Now(),
	}, "A")

	got, err := db.GetShow("a.mpk")
	if err != nil {
		t.Fatalf("GetShow: %v", err)
	}
	if got == nil {
		t.Fatal("GetShow returned nil for cataloged path")
	}
	if got.Format != "msgpack" || got.Duration != 30 || got.TrackCount != 2 {
		t.Errorf("row = %+v", got)
	}
	if len(got.Protocols) != 1 || got.Protocols[0] != "dmx" {
		t.Errorf("protocols = %v", got.Protocols)
	}

	if missing, _ := db.GetShow("nope.json"); missing != nil {
		t.Errorf("GetShow for missing path = %+v, want nil", missing)
	}
}

func TestDeleteShow(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertShow(ShowRow{Path: "del.json", Checksum: "x", UpdatedAt: time.Now()}, "body")

	if err := db.DeleteShow("del.json"); err != nil {
		t.Fatalf("DeleteShow: %v", err)
	}
	cs, _ := db.GetChecksum("del.json")
	if cs != "" {
		t.Errorf("deleted show still has checksum %q", cs)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertShow(ShowRow{Path: "up.json", Name: "Old", Checksum: "1", UpdatedAt: now}, "old body")
	_ = db.UpsertShow(ShowRow{Path: "up.json", Name: "New", Checksum: "2", UpdatedAt: now}, "new body")

	cs, _ := db.GetChecksum("up.json")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	row, _ := db.GetShow("up.json")
	if row == nil || row.Name != "New" {
		t.Errorf("row after upsert = %+v", row)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListShowsFilterAndSort(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertShow(ShowRow{Path: "b.json", Name: "Beta", Duration: 10, Protocols: []string{"dmx"}, UpdatedAt: now}, "")
	_ = db.UpsertShow(ShowRow{Path: "a.json", Name: "Alpha", Duration: 99, Protocols: []string{"midi"}, UpdatedAt: now}, "")
	_ = db.UpsertShow(ShowRow{Path: "c.json", Name: "Gamma", Duration: 50, Protocols: []string{"dmx", "osc"}, UpdatedAt: now}, "")

	rows, total, err := db.ListShows(10, 0, "", "")
	if err != nil {
		t.Fatalf("ListShows: %v", err)
	}
	if total != 3 || len(rows) != 3 {
		t.Fatalf("total = %d, rows = %d, want 3", total, len(rows))
	}
	if rows[0].Name != "Alpha" {
		t.Errorf("default sort first = %q, want Alpha", rows[0].Name)
	}

	rows, total, err = db.ListShows(10, 0, "dmx", "duration")
	if err != nil {
		t.Fatalf("ListShows dmx: %v", err)
	}
	if total != 2 {
		t.Fatalf("dmx total = %d, want 2", total)
	}
	if rows[0].Name != "Gamma" {
		t.Errorf("duration sort first = %q, want Gamma", rows[0].Name)
	}

	rows, _, err = db.ListShows(1, 1, "", "")
	if err != nil {
		t.Fatalf("ListShows page: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Beta" {
		t.Errorf("page 2 = %+v", rows)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertShow(ShowRow{Path: "s.json", Name: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, "uniqueword appears here")

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.json" {
		t.Errorf("search results = %+v, want 1 hit for s.json", results)
	}
}
