package parser

import (
	"io"
	"strconv"
	"sync"

	"github.com/Velocidex/ttlcache/v2"
	"github.com/pkg/errors"
)

const (
	DefaultPageSize      = 0x1000
	DefaultPageCacheSize = 1024
)

// PagedReader reads a collected $MFT or $J in whole pages and keeps
// recently used pages in a size limited cache. Journal pages and MFT
// records are read piecemeal by the image session so most reads are
// served from memory.
type PagedReader struct {
	mu sync.Mutex

	reader   io.ReaderAt
	pagesize int64
	lru      *ttlcache.Cache
	freelist sync.Pool

	Hits int64
	Miss int64
}

func NewPagedReader(reader io.ReaderAt, pagesize int64, cache_size int) (*PagedReader, error) {
	if reader == nil || pagesize <= 0 || pagesize > MaxBufferCapacity {
		return nil, ErrInvalidParameter
	}

	if cache_size <= 0 {
		cache_size = DefaultPageCacheSize
	}

	DebugPrint("Creating page cache of size %v\n", cache_size)

	self := &PagedReader{
		reader:   reader,
		pagesize: pagesize,
		lru:      ttlcache.NewCache(),
	}
	self.freelist.New = func() interface{} {
		return make([]byte, pagesize)
	}

	self.lru.SetCacheSizeLimit(cache_size)

	// Put evicted pages back on the free list
	self.lru.SetExpirationCallback(func(key string, value interface{}) error {
		page_buf, ok := value.([]byte)
		if ok {
			self.freelist.Put(page_buf)
		}
		return nil
	})

	return self, nil
}

// ReadAt follows io.ReaderAt. A read which starts inside the file
// and runs past its end is zero padded and returns no error. A read
// entirely outside the file returns 0 and io.EOF.
func (self *PagedReader) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, io.EOF
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	buf_idx := 0
	for buf_idx < len(buf) {
		// How much is left in this page to read?
		to_read := int(self.pagesize - offset%self.pagesize)
		if to_read > len(buf)-buf_idx {
			to_read = len(buf) - buf_idx
		}

		page := offset - offset%self.pagesize
		page_buf, err := self.getPage(page)
		if err != nil {
			// The entire read range is outside the file.
			if errors.Is(err, io.EOF) {
				if buf_idx == 0 {
					return 0, io.EOF
				}

				// We have some data already so pad the rest.
				for i := buf_idx; i < len(buf); i++ {
					buf[i] = 0
				}
				return len(buf), nil
			}
			return buf_idx, err
		}

		page_offset := int(offset % self.pagesize)
		copy(buf[buf_idx:buf_idx+to_read],
			page_buf[page_offset:page_offset+to_read])

		offset += int64(to_read)
		buf_idx += to_read
	}

	return buf_idx, nil
}

// Must be called with the lock held.
func (self *PagedReader) getPage(page int64) ([]byte, error) {
	key := strconv.FormatInt(page, 16)
	cached, err := self.lru.Get(key)
	if err == nil {
		self.Hits++
		return cached.([]byte), nil
	}

	self.Miss++
	page_buf := self.freelist.Get().([]byte)
	n, err := self.reader.ReadAt(page_buf, page)

	// A real read error
	if err != nil && !errors.Is(err, io.EOF) {
		self.freelist.Put(page_buf)
		return nil, err
	}

	if n == 0 {
		self.freelist.Put(page_buf)
		return nil, io.EOF
	}

	// Clear the rest of the page because it is going to the
	// cache.
	for i := n; i < len(page_buf); i++ {
		page_buf[i] = 0
	}

	_ = self.lru.Set(key, page_buf)
	return page_buf, nil
}

// Flush drops all cached pages so the next read sees fresh data.
func (self *PagedReader) Flush() {
	self.mu.Lock()
	defer self.mu.Unlock()

	_ = self.lru.Purge()
}

func (self *PagedReader) Close() error {
	return self.lru.Close()
}
