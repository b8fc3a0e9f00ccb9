package parser

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	// Largest record we expect in a collected $J. Anything larger is
	// treated as corruption and skipped.
	MAX_USN_RECORD_SIZE = 0x10000

	// How much we scan at once when skipping sparse regions.
	MAX_USN_RECORD_SCAN_SIZE = 0x10000

	// Windows error codes reported by the emulated control calls.
	ERROR_INVALID_PARAMETER   = 87
	ERROR_INSUFFICIENT_BUFFER = 122
	ERROR_JOURNAL_NOT_ACTIVE  = 1179
)

type ImageOptions struct {
	// A raw $MFT. May be nil.
	MFT     io.ReaderAt
	MFTSize int64

	// The $UsnJrnl:$J data stream. May be nil.
	Journal     io.ReaderAt
	JournalSize int64

	// Reported as the journal id.
	JournalID uint64

	RecordSize int64
	CacheSize  int
}

// ImageSession emulates the control calls over a collected $MFT and
// $UsnJrnl:$J. The usn of each record is its offset in $J. Sparse
// regions are skipped. Administrative requests are not supported.
type ImageSession struct {
	mft_reader *PagedReader
	mft_size   int64

	journal_reader *PagedReader
	journal_size   int64
	journal_id     uint64

	// Offset of the first record in $J, -1 until found.
	first_usn int64

	record_size int64

	closers []io.Closer
}

func OpenImage(options ImageOptions) (*ImageSession, error) {
	if options.MFT == nil && options.Journal == nil {
		return nil, errors.Wrap(ErrInvalidParameter,
			"OpenImage: need at least one of $MFT or $J")
	}

	if options.RecordSize == 0 {
		options.RecordSize = DefaultRecordSize
	}

	if options.RecordSize < MFT_FILE_RECORD_HEADER_SIZE ||
		options.RecordSize > MaxBufferCapacity {
		return nil, errors.Wrapf(ErrInvalidParameter,
			"OpenImage: record size %v", options.RecordSize)
	}

	self := &ImageSession{
		mft_size:     options.MFTSize,
		journal_size: options.JournalSize,
		journal_id:   options.JournalID,
		first_usn:    -1,
		record_size:  options.RecordSize,
	}

	var err error
	if options.MFT != nil {
		self.mft_reader, err = NewPagedReader(
			options.MFT, DefaultPageSize, options.CacheSize)
		if err != nil {
			return nil, err
		}
	}

	if options.Journal != nil {
		self.journal_reader, err = NewPagedReader(
			options.Journal, DefaultPageSize, options.CacheSize)
		if err != nil {
			return nil, err
		}
	}

	return self, nil
}

// OpenImageFiles opens a collected $MFT and/or $J. Either path may be
// empty.
func OpenImageFiles(mft_path, journal_path string, options Options) (
	*ImageSession, error) {
	image_options := ImageOptions{
		RecordSize: options.RecordSize,
		CacheSize:  options.PageCacheSize,
	}

	closers := []io.Closer{}
	cleanup := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	open := func(path string) (*os.File, int64, error) {
		fd, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		closers = append(closers, fd)

		stat, err := fd.Stat()
		if err != nil {
			return nil, 0, err
		}
		return fd, stat.Size(), nil
	}

	if mft_path != "" {
		fd, size, err := open(mft_path)
		if err != nil {
			cleanup()
			return nil, errors.Wrap(err, "OpenImageFiles")
		}
		image_options.MFT = fd
		image_options.MFTSize = size
	}

	if journal_path != "" {
		fd, size, err := open(journal_path)
		if err != nil {
			cleanup()
			return nil, errors.Wrap(err, "OpenImageFiles")
		}
		image_options.Journal = fd
		image_options.JournalSize = size
	}

	result, err := OpenImage(image_options)
	if err != nil {
		cleanup()
		return nil, err
	}
	result.closers = closers
	return result, nil
}

func (self *ImageSession) Flush() {
	if self.mft_reader != nil {
		self.mft_reader.Flush()
	}
	if self.journal_reader != nil {
		self.journal_reader.Flush()
	}
}

func (self *ImageSession) Close() error {
	if self.mft_reader != nil {
		self.mft_reader.Close()
	}
	if self.journal_reader != nil {
		self.journal_reader.Close()
	}

	var result error
	for _, c := range self.closers {
		err := c.Close()
		if err != nil && result == nil {
			result = err
		}
	}
	self.closers = nil
	return result
}

func (self *ImageSession) QueryJournal() (*JournalDescriptor, error) {
	if self.journal_reader == nil {
		return nil, errors.Wrap(ErrNotSupported, "no $J in image")
	}

	first_usn := self.firstUsn()
	return &JournalDescriptor{
		JournalID:                self.journal_id,
		FirstUsn:                 first_usn,
		NextUsn:                  self.journal_size,
		LowestValidUsn:           first_usn,
		MaxUsn:                   0x7FFFFFFFFFFF0000,
		MaxSize:                  uint64(self.journal_size - first_usn),
		MinSupportedMajorVersion: 2,
		MaxSupportedMajorVersion: 4,
	}, nil
}

func (self *ImageSession) CreateJournal(max_size, allocation_delta uint64) error {
	return errors.Wrap(ErrNotSupported, "CreateJournal on an image")
}

func (self *ImageSession) DeleteJournal(journal_id uint64) error {
	return errors.Wrap(ErrNotSupported, "DeleteJournal on an image")
}

func (self *ImageSession) firstUsn() int64 {
	if self.first_usn < 0 {
		self.first_usn = self.skipSparse(0)
	}
	return self.first_usn
}

// skipSparse returns the 8 byte aligned offset of the first non zero
// byte at or after offset, or the size of $J.
func (self *ImageSession) skipSparse(offset int64) int64 {
	data := make([]byte, MAX_USN_RECORD_SCAN_SIZE)

	for offset < self.journal_size {
		to_read := CapInt64(self.journal_size-offset, MAX_USN_RECORD_SCAN_SIZE)
		n, err := self.journal_reader.ReadAt(data[:to_read], offset)
		if n == 0 || (err != nil && err != io.EOF) {
			break
		}

		for i := 0; i < n; i++ {
			if data[i] != 0 {
				return (offset + int64(i)) &^ 7
			}
		}
		offset += int64(n)
	}

	return self.journal_size
}

// ReadJournalPage fills the buffer with as many whole records as fit
// starting at start_usn, preceded by the usn following the last one.
func (self *ImageSession) ReadJournalPage(journal_id uint64, start_usn int64,
	reason_mask uint32, buffer *Buffer) (int, error) {
	if self.journal_reader == nil {
		return 0, errors.Wrap(ErrNotSupported, "no $J in image")
	}

	if journal_id != self.journal_id {
		return 0, NewTransportError("ReadJournalPage",
			ERROR_JOURNAL_NOT_ACTIVE, errors.Errorf(
				"journal id %#x is not active", journal_id))
	}

	if start_usn < 0 || buffer.Capacity() < USN_PAGE_HEADER_SIZE {
		return 0, NewTransportError("ReadJournalPage",
			ERROR_INVALID_PARAMETER, ErrInvalidParameter)
	}

	// Entries before the first record were purged from the
	// journal.
	offset := (start_usn + 7) &^ 7
	first_usn := self.firstUsn()
	if offset < first_usn {
		offset = first_usn
	}

	out := buffer.Bytes()
	written := USN_PAGE_HEADER_SIZE
	header := make([]byte, USN_RECORD_COMMON_HEADER_SIZE)

	for offset < self.journal_size {
		n, err := self.journal_reader.ReadAt(header, offset)
		if n < len(header) || (err != nil && err != io.EOF) {
			break
		}

		length := int64(getUint32(header, 0))
		major := getUint16(header, 4)

		// Sparse run or padding between records.
		if length == 0 {
			offset = self.skipSparse(offset + 8)
			continue
		}

		// Not a plausible record, scan ahead for the next one.
		if length < USN_RECORD_COMMON_HEADER_SIZE ||
			length > MAX_USN_RECORD_SIZE || length%8 != 0 ||
			major < 2 || major > 4 {
			DebugPrint("ReadJournalPage: skipping corrupt record at %#x", offset)
			offset += 8
			continue
		}

		// Truncated at the end of the file.
		if offset+length > self.journal_size {
			offset = self.journal_size
			break
		}

		if int64(written)+length > int64(len(out)) {
			if written == USN_PAGE_HEADER_SIZE {
				return 0, NewTransportError("ReadJournalPage",
					ERROR_INSUFFICIENT_BUFFER, errors.Wrapf(ErrBufferOverflow,
						"record of %v bytes at %#x", length, offset))
			}
			break
		}

		n, err = self.journal_reader.ReadAt(
			out[written:written+int(length)], offset)
		if int64(n) < length {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return 0, NewTransportError("ReadJournalPage", 0, err)
		}

		written += int(length)
		offset += length
	}

	putInt64(out, 0, offset)
	return written, buffer.SetLen(written)
}

// GetMFTRecord reads a record from the raw $MFT and applies the
// fixups.
func (self *ImageSession) GetMFTRecord(
	file_reference_number uint64, buffer *Buffer) (int, error) {
	if self.mft_reader == nil {
		return 0, errors.Wrap(ErrNotSupported, "no $MFT in image")
	}

	id := int64(file_reference_number & 0xFFFFFFFFFFFF)
	offset := id * self.record_size
	if id < 0 || offset+self.record_size > self.mft_size {
		return 0, NewTransportError("GetMFTRecord",
			ERROR_INVALID_PARAMETER, errors.Wrapf(ErrInvalidParameter,
				"record %v is beyond the end of the $MFT", id))
	}

	record := make([]byte, self.record_size)
	n, err := self.mft_reader.ReadAt(record, offset)
	if int64(n) < self.record_size {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return 0, NewTransportError("GetMFTRecord", 0, err)
	}

	if string(record[:4]) == MFT_FILE_RECORD_MAGIC {
		err = FixUpRecord(record)
		if err != nil {
			return 0, err
		}
	}

	output := EncodeFileRecordOutput(uint64(id), record)
	if len(output) > buffer.Capacity() {
		return 0, NewTransportError("GetMFTRecord",
			ERROR_INSUFFICIENT_BUFFER, ErrBufferOverflow)
	}

	_ = buffer.SetLen(0)
	err = buffer.CopyIn(0, output)
	if err != nil {
		return 0, err
	}
	return len(output), nil
}

// GetVolumeData reports what can be known from the image: the record
// size and the size of the $MFT.
func (self *ImageSession) GetVolumeData(buffer *Buffer) (int, error) {
	if self.mft_reader == nil {
		return 0, errors.Wrap(ErrNotSupported, "no $MFT in image")
	}

	volume_data := &VolumeData{
		BytesPerSector:            FIXUP_SECTOR_SIZE,
		BytesPerCluster:           DefaultPageSize,
		BytesPerFileRecordSegment: uint32(self.record_size),
		MftValidDataLength:        self.mft_size,
		NtfsMajorVersion:          3,
		NtfsMinorVersion:          1,
	}

	if self.record_size >= DefaultPageSize {
		volume_data.ClustersPerFileRecordSegment = uint32(
			self.record_size / DefaultPageSize)
	}

	output := volume_data.Encode()
	if buffer.Capacity() < NTFS_VOLUME_DATA_BUFFER_SIZE {
		return 0, NewTransportError("GetVolumeData",
			ERROR_INSUFFICIENT_BUFFER, ErrBufferOverflow)
	}

	output = output[:CapInt(len(output), buffer.Capacity())]
	_ = buffer.SetLen(0)
	err := buffer.CopyIn(0, output)
	if err != nil {
		return 0, err
	}
	return len(output), nil
}
