// Package arrowio moves sequences in and out of Apache Arrow: record
// batches with one float64 column per channel, IPC stream files, and a
// Flight DoExchange service that runs a forward pass per record batch.
package arrowio

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmptyRecord     = errors.New("record has no rows or columns")
	ErrColumnType      = errors.New("column is not float64")
	ErrNoSequences     = errors.New("no sequences")
	ErrChannelsDiffer  = errors.New("sequences have different channel counts")
	ErrNullValue       = errors.New("column contains nulls")
	errUnexpectedShape = errors.New("unexpected number of results")
)

// Schema returns the record layout for a sequence of the given width:
// columns "c0" .. "c{channels-1}", one row per time step.
func Schema(channels int) *arrow.Schema {
	fields := make([]arrow.Field, channels)
	for c := range fields {
		fields[c] = arrow.Field{Name: fmt.Sprintf("c%d", c), Type: arrow.PrimitiveTypes.Float64}
	}
	return arrow.NewSchema(fields, nil)
}

// ToRecord copies a (length, channels) sequence into a record batch. The
// caller owns the returned record and must Release it.
func ToRecord(mem memory.Allocator, x *mat.Dense) arrow.Record {
	length, channels := x.Dims()
	b := array.NewRecordBuilder(mem, Schema(channels))
	defer b.Release()

	col := make([]float64, length)
	for c := 0; c < channels; c++ {
		mat.Col(col, c, x)
		b.Field(c).(*array.Float64Builder).AppendValues(col, nil)
	}
	return b.NewRecord()
}

// FromRecord copies a record batch into a new (rows, columns) sequence.
func FromRecord(rec arrow.Record) (*mat.Dense, error) {
	rows, cols := int(rec.NumRows()), int(rec.NumCols())
	if rows == 0 || cols == 0 {
		return nil, ErrEmptyRecord
	}
	out := mat.NewDense(rows, cols, nil)
	for c := 0; c < cols; c++ {
		arr, ok := rec.Column(c).(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("%w: %q is %s", ErrColumnType, rec.ColumnName(c), rec.Column(c).DataType())
		}
		if arr.NullN() > 0 {
			return nil, fmt.Errorf("%w: %q", ErrNullValue, rec.ColumnName(c))
		}
		out.SetCol(c, arr.Float64Values())
	}
	return out, nil
}

func sharedWidth(seqs []*mat.Dense) (int, error) {
	if len(seqs) == 0 {
		return 0, ErrNoSequences
	}
	_, channels := seqs[0].Dims()
	for _, s := range seqs[1:] {
		if _, c := s.Dims(); c != channels {
			return 0, fmt.Errorf("%w: %d and %d", ErrChannelsDiffer, channels, c)
		}
	}
	return channels, nil
}

// WriteIPC writes the sequences as one Arrow IPC stream, a record batch
// each.
func WriteIPC(w io.Writer, seqs ...*mat.Dense) error {
	channels, err := sharedWidth(seqs)
	if err != nil {
		return err
	}
	mem := memory.DefaultAllocator
	writer := ipc.NewWriter(w, ipc.WithSchema(Schema(channels)), ipc.WithAllocator(mem))
	for i, s := range seqs {
		rec := ToRecord(mem, s)
		err := writer.Write(rec)
		rec.Release()
		if err != nil {
			writer.Close()
			return fmt.Errorf("write sequence %d: %w", i, err)
		}
	}
	return writer.Close()
}

// ReadIPC reads every record batch of an Arrow IPC stream as a sequence.
func ReadIPC(r io.Reader) ([]*mat.Dense, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("open ipc stream: %w", err)
	}
	defer reader.Release()

	var seqs []*mat.Dense
	for reader.Next() {
		x, err := FromRecord(reader.Record())
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(seqs), err)
		}
		seqs = append(seqs, x)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read ipc stream: %w", err)
	}
	return seqs, nil
}
