package parser

import (
	"bytes"
	"io"
	"testing"

	"github.com/alecthomas/assert"
)

func TestReader(t *testing.T) {
	r, _ := NewPagedReader(
		bytes.NewReader([]byte("abcd")),
		3 /* pagesize */, 100 /* cache_size */)

	// Read 1 byte from the end of the buffer.
	buf := make([]byte, 1)
	c, err := r.ReadAt(buf, 3)
	assert.NoError(t, err)
	assert.Equal(t, c, 1)
	assert.Equal(t, buf, []byte{0x64})

	// Read past end (3 byte buffer from offset 3).
	buf = make([]byte, 3)
	c, err = r.ReadAt(buf, 3)
	assert.NoError(t, err)
	assert.Equal(t, c, 3)
	assert.Equal(t, buf, []byte{0x64, 0x00, 0x00})

	// Read spanning pages.
	buf = make([]byte, 4)
	c, err = r.ReadAt(buf, 0)
	assert.NoError(t, err)
	assert.Equal(t, c, 4)
	assert.Equal(t, buf, []byte("abcd"))

	// Read entirely outside the file.
	c, err = r.ReadAt(buf, 6)
	assert.Equal(t, err, io.EOF)
	assert.Equal(t, c, 0)
}

func TestReaderCachesPages(t *testing.T) {
	data := []byte("0123456789abcdef")
	r, err := NewPagedReader(bytes.NewReader(data), 4, 10)
	assert.NoError(t, err)

	buf := make([]byte, 2)
	for i := 0; i < 3; i++ {
		_, err = r.ReadAt(buf, 5)
		assert.NoError(t, err)
		assert.Equal(t, buf, []byte("56"))
	}
	assert.Equal(t, r.Miss, int64(1))
	assert.Equal(t, r.Hits, int64(2))

	// Flushing forces a fresh read.
	r.Flush()
	_, err = r.ReadAt(buf, 5)
	assert.NoError(t, err)
	assert.Equal(t, r.Miss, int64(2))
	assert.NoError(t, r.Close())

	_, err = NewPagedReader(nil, 4, 10)
	assert.Error(t, err)
}

func TestReaderEvictsPages(t *testing.T) {
	data := []byte("0123456789abcdefghijklmnopqrstuv")
	r, err := NewPagedReader(bytes.NewReader(data), 4, 2)
	assert.NoError(t, err)
	defer r.Close()

	// Reading more pages than the cache holds recycles evicted pages.
	for pass := 0; pass < 2; pass++ {
		buf := make([]byte, len(data))
		n, err := r.ReadAt(buf, 0)
		assert.NoError(t, err)
		assert.Equal(t, n, len(data))
		assert.Equal(t, buf, data)

		for i := len(data) - 1; i >= 0; i-- {
			one := make([]byte, 1)
			_, err = r.ReadAt(one, int64(i))
			assert.NoError(t, err)
			assert.Equal(t, one[0], data[i])
		}
	}
}
