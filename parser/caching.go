// Manage caching of MFT record metadata. This is mainly used to
// resolve the parent directories of USN records into full paths.

package parser

import (
	"strconv"
	"sync"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/Velocidex/ttlcache/v2"
)

type FNSummary struct {
	Name                 string
	NameType             string
	ParentEntryNumber    uint64
	ParentSequenceNumber uint16
}

type MFTEntrySummary struct {
	RecordNumber uint64
	Sequence     uint16
	IsDir        bool
	Filenames    []FNSummary
}

type MFTEntryCache struct {
	mu sync.Mutex

	ntfs *NTFSContext

	lru *ttlcache.Cache

	// 0 means summaries are never kept.
	size int

	hits, misses int
}

func NewMFTEntryCache(ntfs *NTFSContext, size int, ttl time.Duration) *MFTEntryCache {
	lru := ttlcache.NewCache()
	if size > 0 {
		lru.SetCacheSizeLimit(size)
	}

	// Directories on a live volume change. Summaries expire so
	// long running watchers pick up renames.
	if ttl > 0 {
		_ = lru.SetTTL(ttl)
	}

	return &MFTEntryCache{
		ntfs: ntfs,
		lru:  lru,
		size: size,
	}
}

func (self *MFTEntryCache) Stats() *ordereddict.Dict {
	self.mu.Lock()
	defer self.mu.Unlock()

	return ordereddict.NewDict().
		Set("Size", self.lru.Count()).
		Set("Hits", self.hits).
		Set("Misses", self.misses)
}

// GetSummary gets a MFTEntrySummary for the mft id.
func (self *MFTEntryCache) GetSummary(id uint64) (*MFTEntrySummary, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	key := strconv.FormatUint(id, 10)
	res_any, err := self.lru.Get(key)
	if err == nil && self.size > 0 {
		res, ok := res_any.(*MFTEntrySummary)
		if ok {
			self.hits++
			STATS.Inc_RecordCache(true)
			return res, nil
		}
	}

	self.misses++
	STATS.Inc_RecordCache(false)

	mft_record, err := self.ntfs.GetMFTRecord(id)
	if err != nil {
		return nil, err
	}

	cache_record := &MFTEntrySummary{
		RecordNumber: mft_record.FileReferenceNumber.MFTId(),
		Sequence:     mft_record.Sequence_value(),
		IsDir:        mft_record.Flags().IsSet("DIRECTORY"),
	}

	for _, fn := range mft_record.FileNames() {
		cache_record.Filenames = append(cache_record.Filenames,
			FNSummary{
				Name:                 fn.Name(),
				NameType:             fn.NameType().Name,
				ParentEntryNumber:    fn.MftReference(),
				ParentSequenceNumber: fn.Seq_num(),
			})
	}

	if self.size > 0 {
		_ = self.lru.Set(key, cache_record)
	}
	return cache_record, nil
}

func (self *MFTEntryCache) Purge() {
	self.mu.Lock()
	defer self.mu.Unlock()

	_ = self.lru.Purge()
}

func (self *MFTEntryCache) Close() {
	self.mu.Lock()
	defer self.mu.Unlock()

	_ = self.lru.Close()
}
