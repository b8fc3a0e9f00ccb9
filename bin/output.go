package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	"www.velocidex.com/golang/go-usn/parser"
)

type rowWriter interface {
	Write(row *ordereddict.Dict) error
	Close() error
}

// jsonLineWriter writes one JSON object per line.
type jsonLineWriter struct {
	writer io.Writer
}

func (self *jsonLineWriter) Write(row *ordereddict.Dict) error {
	serialized, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "Marshal")
	}

	_, err = self.writer.Write(append(serialized, '\n'))
	return err
}

func (self *jsonLineWriter) Close() error {
	return nil
}

// recordsWriter writes all rows into a single {"Records": [...]}
// document.
type recordsWriter struct {
	writer io.Writer
	closer io.Closer
	count  int
}

func newRecordsWriter(writer io.Writer) (*recordsWriter, error) {
	_, err := writer.Write([]byte(`{"Records":[`))
	if err != nil {
		return nil, err
	}
	return &recordsWriter{writer: writer}, nil
}

func openRecordsFile(filename string) (*recordsWriter, error) {
	fd, err := os.OpenFile(filename,
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "openRecordsFile")
	}

	result, err := newRecordsWriter(fd)
	if err != nil {
		fd.Close()
		return nil, err
	}
	result.closer = fd
	return result, nil
}

func (self *recordsWriter) Write(row *ordereddict.Dict) error {
	serialized, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "Marshal")
	}

	separator := []byte(",\n")
	if self.count == 0 {
		separator = []byte("\n")
	}
	self.count++

	_, err = self.writer.Write(append(separator, serialized...))
	return err
}

func (self *recordsWriter) Close() error {
	_, err := self.writer.Write([]byte("\n]}\n"))
	if self.closer != nil {
		close_err := self.closer.Close()
		if err == nil {
			err = close_err
		}
	}
	return err
}

func recordRow(ntfs_ctx *parser.NTFSContext,
	record *parser.USN_RECORD, resolve bool) *ordereddict.Dict {
	row := parser.ModelUSNRecord(record)
	if resolve {
		row.Set("FullPath", parser.ResolveUSNPath(ntfs_ctx, record))
	}
	return row
}

// dumpRecords writes every record from start_usn to the end of the
// journal. Any failure, including a malformed record part way
// through, is returned.
func dumpRecords(ntfs_ctx *parser.NTFSContext, start_usn int64,
	resolve bool, output rowWriter) (int, error) {
	cursor, err := ntfs_ctx.NewCursor(start_usn)
	if err != nil {
		return 0, err
	}

	count := 0
	err = cursor.EnumerateRecords(func(record *parser.USN_RECORD) error {
		count++
		return output.Write(recordRow(ntfs_ctx, record, resolve))
	})
	return count, err
}
