package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mdm-cli/internal/model"
)

func readCSVFile(ctx context.Context, path string, opts Options) ([]model.PersonRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open file")
	}
	defer f.Close()

	return ReadCSV(ctx, f, opts)
}

// ReadCSV loads person records from a delimited stream. The first row is the
// header; it must contain at least one recognized column.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) ([]model.PersonRecord, error) {
	rowCh, errCh := streamRows(ctx, r, opts.Delimiter)

	var builder *recordBuilder
	for row := range rowCh {
		if builder == nil {
			b, err := newRecordBuilder(row, opts.mapping())
			if err != nil {
				for range rowCh { // unblock the reader goroutine
				}
				<-errCh
				return nil, err
			}
			builder = b
			continue
		}
		builder.add(row)
	}

	if err := <-errCh; err != nil {
		return nil, err
	}
	if builder == nil {
		return nil, eris.New("ingest: empty input")
	}
	return builder.records, nil
}

// streamRows reads delimited rows into a channel so large uploads never sit
// fully in memory. Both channels close when the stream is exhausted; at most
// one error is sent.
func streamRows(ctx context.Context, r io.Reader, delimiter rune) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if delimiter != 0 {
			reader.Comma = delimiter
		}
		reader.LazyQuotes = true    // vendor exports quote carelessly
		reader.FieldsPerRecord = -1 // ragged rows are handled per-column

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}

			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "ingest: read row")
				return
			}

			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
