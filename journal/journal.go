// Package journal appends one record per fill/close event to a CSV file.
package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gaptrader/types"
)

var header = []string{"Time", "Symbol", "Side", "Volume", "Price", "Profit", "Comment", "Magic", "SL", "TP"}

// Entry is one journal row. Money fields use decimal so the file never
// carries float formatting artifacts.
type Entry struct {
	Time    time.Time
	Symbol  string
	Side    types.Side
	Volume  decimal.Decimal
	Price   decimal.Decimal
	Profit  decimal.Decimal
	Comment string
	Magic   int64
	Stop    decimal.Decimal
	Target  decimal.Decimal
}

// Writer is an append-only CSV sink.
type Writer interface {
	Record(Entry) error
	Close() error
}

type csvWriter struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVWriter opens (or creates) the journal file and writes the header if
// the file is empty.
func NewCSVWriter(path string) (Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat journal: %w", err)
	}
	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("write journal header: %w", err)
		}
		w.Flush()
	}
	return &csvWriter{file: file, w: w}, nil
}

func (c *csvWriter) Record(e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := []string{
		e.Time.UTC().Format("2006-01-02 15:04:05"),
		e.Symbol,
		string(e.Side),
		e.Volume.String(),
		e.Price.String(),
		e.Profit.String(),
		e.Comment,
		strconv.FormatInt(e.Magic, 10),
		e.Stop.String(),
		e.Target.String(),
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write journal row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	c.w.Flush()
	err := c.file.Close()
	c.file = nil
	return err
}

// EntryFromFill builds a journal row from a gateway fill report.
func EntryFromFill(f types.Fill, comment string, stop, target float64) Entry {
	return Entry{
		Time:    f.Time,
		Symbol:  f.Symbol,
		Side:    f.Side,
		Volume:  decimal.NewFromFloat(f.Volume),
		Price:   decimal.NewFromFloat(f.Price),
		Profit:  decimal.NewFromFloat(f.Profit),
		Comment: comment,
		Magic:   f.Magic,
		Stop:    decimal.NewFromFloat(stop),
		Target:  decimal.NewFromFloat(target),
	}
}

// Nop is a Writer that discards everything, used when the journal is
// disabled.
type Nop struct{}

func (Nop) Record(Entry) error { return nil }
func (Nop) Close() error       { return nil }
