package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gaptrader/types"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	return rows
}

func TestRecordRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	entry := Entry{
		Time:    time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC),
		Symbol:  "XAUUSD",
		Side:    types.Buy,
		Volume:  decimal.NewFromFloat(0.02),
		Price:   decimal.NewFromFloat(1998.5),
		Profit:  decimal.NewFromFloat(-12.5),
		Comment: "stop",
		Magic:   10000,
		Stop:    decimal.NewFromFloat(1978.5),
		Target:  decimal.NewFromFloat(2098.5),
	}
	if err := w.Record(entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if rows[0][0] != "Time" || rows[0][9] != "TP" {
		t.Fatalf("header wrong: %v", rows[0])
	}
	row := rows[1]
	want := []string{"2026-03-02 09:30:00", "XAUUSD", "BUY", "0.02", "1998.5", "-12.5", "stop", "10000", "1978.5", "2098.5"}
	for i, w := range want {
		if row[i] != w {
			t.Fatalf("column %d: expected %q, got %q", i, w, row[i])
		}
	}
}

func TestAppendSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.csv")

	for i := 0; i < 2; i++ {
		w, err := NewCSVWriter(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		e := EntryFromFill(types.Fill{
			Symbol: "EURUSD",
			Side:   types.Sell,
			Volume: 0.05,
			Price:  1.085,
			Magic:  20001,
			Time:   time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC),
		}, "target", 1.09, 1.06)
		if err := w.Record(e); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}

	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	for i, row := range rows[1:] {
		if row[0] == "Time" {
			t.Fatalf("row %d: header repeated on append", i+1)
		}
		if row[1] != "EURUSD" || row[2] != "SELL" || row[6] != "target" {
			t.Fatalf("row %d wrong: %v", i+1, row)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNopDiscards(t *testing.T) {
	var w Writer = Nop{}
	if err := w.Record(Entry{}); err != nil {
		t.Fatalf("nop record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nop close: %v", err)
	}
}
