package parser

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Flushers drop any cached data so the next read is fresh.
type Flusher interface {
	Flush()
}

// NTFSContext owns a session and the state derived from it: the
// cached journal descriptor, the volume data and the MFT summary
// cache. Administrative calls drop the cached descriptor so it is
// queried again on next use.
type NTFSContext struct {
	mu sync.Mutex

	session *SharedSession

	// Analysis options can be set with SetOptions()
	options Options

	descriptor  *JournalDescriptor
	volume_data *VolumeData

	mft_summary_cache *MFTEntryCache

	MaxDirectoryDepth int
}

func GetNTFSContext(session Session, options Options) (*NTFSContext, error) {
	if session == nil {
		return nil, ErrInvalidParameter
	}

	err := options.Validate()
	if err != nil {
		return nil, err
	}

	ntfs := &NTFSContext{
		session:           NewSharedSession(session),
		options:           options,
		MaxDirectoryDepth: DefaultMaxDirectoryDepth,
	}

	ntfs.mft_summary_cache = NewMFTEntryCache(ntfs,
		options.RecordCacheSize,
		time.Duration(options.WatchPeriod)*time.Second)
	return ntfs, nil
}

// Copy returns a new context sharing the session. Each copy must be
// closed.
func (self *NTFSContext) Copy() *NTFSContext {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := &NTFSContext{
		session:           self.session.Dup(),
		options:           self.options,
		MaxDirectoryDepth: self.MaxDirectoryDepth,
	}
	result.mft_summary_cache = NewMFTEntryCache(result,
		self.options.RecordCacheSize,
		time.Duration(self.options.WatchPeriod)*time.Second)
	return result
}

func (self *NTFSContext) Session() Session {
	return self.session
}

func (self *NTFSContext) Options() Options {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.options
}

func (self *NTFSContext) SetOptions(options Options) error {
	err := options.Validate()
	if err != nil {
		return err
	}

	self.mu.Lock()
	defer self.mu.Unlock()
	self.options = options
	return nil
}

func (self *NTFSContext) Close() error {
	if debugEnabled() {
		DebugPrint("%v", STATS.DebugString())
		DebugPrint("MFT summary cache: %v",
			DebugString(self.mft_summary_cache.Stats(), ""))
	}
	self.Purge()
	self.mft_summary_cache.Close()
	return self.session.Close()
}

// Purge drops all cached state.
func (self *NTFSContext) Purge() {
	self.InvalidateJournal()
	self.mft_summary_cache.Purge()

	self.mu.Lock()
	self.volume_data = nil
	self.mu.Unlock()

	// Try to flush our session if possible
	flusher, ok := self.session.Session.(Flusher)
	if ok {
		flusher.Flush()
	}
}

// InvalidateJournal forgets the cached journal descriptor.
func (self *NTFSContext) InvalidateJournal() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.descriptor = nil
}

// QueryJournal returns the cached descriptor or queries the session.
// The result is a copy.
func (self *NTFSContext) QueryJournal() (*JournalDescriptor, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.descriptor == nil {
		descriptor, err := self.session.QueryJournal()
		if err != nil {
			return nil, err
		}
		self.descriptor = descriptor

		DebugFields("Queried journal", logrus.Fields{
			"JournalID": fmt.Sprintf("%#x", descriptor.JournalID),
			"FirstUsn":  descriptor.FirstUsn,
			"NextUsn":   descriptor.NextUsn,
		})
	}

	result := *self.descriptor
	return &result, nil
}

func (self *NTFSContext) CreateJournal(max_size, allocation_delta uint64) error {
	STATS.Inc_AdministrativeCall()
	defer self.InvalidateJournal()

	Logger.WithFields(logrus.Fields{
		"MaxSize":         max_size,
		"AllocationDelta": allocation_delta,
	}).Info("Creating change journal")

	return self.session.CreateJournal(max_size, allocation_delta)
}

func (self *NTFSContext) DeleteJournal(journal_id uint64) error {
	STATS.Inc_AdministrativeCall()
	defer self.InvalidateJournal()

	Logger.WithFields(logrus.Fields{
		"JournalID": fmt.Sprintf("%#x", journal_id),
	}).Info("Deleting change journal")

	return self.session.DeleteJournal(journal_id)
}

// ResetJournal deletes and recreates the journal with the same size
// parameters. It returns the descriptor from before the reset.
func (self *NTFSContext) ResetJournal() (*JournalDescriptor, error) {
	STATS.Inc_AdministrativeCall()
	defer self.InvalidateJournal()

	return ResetJournal(self.session)
}

// GetVolumeData returns the cached volume data.
func (self *NTFSContext) GetVolumeData() (*VolumeData, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.volume_data != nil {
		result := *self.volume_data
		return &result, nil
	}

	buffer, err := NewBuffer(NTFS_VOLUME_DATA_BUFFER_SIZE +
		NTFS_EXTENDED_VOLUME_DATA_SIZE)
	if err != nil {
		return nil, err
	}

	n, err := self.session.GetVolumeData(buffer)
	if err != nil {
		return nil, err
	}

	volume_data, err := ParseVolumeData(buffer.Bytes()[:n])
	if err != nil {
		return nil, err
	}

	if volume_data.BytesPerFileRecordSegment == 0 {
		return nil, ErrInvalidVolumeData
	}

	self.volume_data = volume_data
	result := *volume_data
	return &result, nil
}

// GetRecordSize is the size of MFT records on this volume. It falls
// back to the configured size when the volume data is not
// available.
func (self *NTFSContext) GetRecordSize() int64 {
	volume_data, err := self.GetVolumeData()
	if err == nil {
		return int64(volume_data.BytesPerFileRecordSegment)
	}

	return self.Options().RecordSize
}

// MFTRecord is a record fetched through the session. It owns its
// bytes.
type MFTRecord struct {
	*MFT_FILE_RECORD

	// The record actually returned. The file record call returns
	// the closest in-use record at or below the requested one.
	FileReferenceNumber FileReference
}

func (self *NTFSContext) GetMFTRecord(id uint64) (*MFTRecord, error) {
	record_size := self.GetRecordSize()

	buffer, err := NewBuffer(
		int(record_size) + NTFS_FILE_RECORD_OUTPUT_HEADER_SIZE)
	if err != nil {
		return nil, err
	}

	n, err := self.session.GetMFTRecord(id, buffer)
	if err != nil {
		return nil, err
	}

	file_reference_number, record, err := ParseFileRecordOutput(
		buffer.Bytes()[:n])
	if err != nil {
		return nil, err
	}

	mft_record, err := ParseMFTFileRecord(record)
	if err != nil {
		return nil, errors.Wrapf(err, "MFT record %v", id)
	}

	return &MFTRecord{
		MFT_FILE_RECORD:     mft_record,
		FileReferenceNumber: NewFileReference64(file_reference_number),
	}, nil
}

// WalkMFTAttributes fetches a record and visits its attributes.
func (self *NTFSContext) WalkMFTAttributes(
	id uint64, visitor func(attr *NTFS_ATTRIBUTE) error) error {
	mft_record, err := self.GetMFTRecord(id)
	if err != nil {
		return err
	}
	return mft_record.WalkAttributes(visitor)
}

func (self *NTFSContext) GetMFTSummary(id uint64) (*MFTEntrySummary, error) {
	return self.mft_summary_cache.GetSummary(id)
}

// FileCount is the number of records the MFT can hold.
func (self *NTFSContext) FileCount() (uint64, error) {
	volume_data, err := self.GetVolumeData()
	if err != nil {
		return 0, err
	}
	return volume_data.FileCount()
}

// NewCursor starts a cursor at start_usn. When start_usn is 0 the
// configured StartUsn is used, or the first usn of the journal.
func (self *NTFSContext) NewCursor(start_usn int64) (*Cursor, error) {
	descriptor, err := self.QueryJournal()
	if err != nil {
		return nil, err
	}

	options := self.Options()
	if start_usn == 0 {
		start_usn = options.StartUsn
	}
	if start_usn == 0 {
		start_usn = descriptor.FirstUsn
	}

	return NewCursor(self.session, descriptor.JournalID, start_usn, options)
}

// EnumerateRecords visits every record in the journal from the
// configured start.
func (self *NTFSContext) EnumerateRecords(visitor func(record *USN_RECORD) error) error {
	cursor, err := self.NewCursor(0)
	if err != nil {
		return err
	}
	return cursor.EnumerateRecords(visitor)
}
