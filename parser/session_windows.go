//go:build windows
// +build windows

package parser

import (
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// VolumeSession talks to a live volume through DeviceIoControl.
type VolumeSession struct {
	handle windows.Handle
	name   string

	min_version uint16
	max_version uint16
}

// OpenVolume opens a volume such as "C:" or "\\.\C:". This needs
// administrator rights.
func OpenVolume(name string, options Options) (Session, error) {
	path := name
	if !strings.HasPrefix(path, `\\`) {
		path = `\\.\` + strings.TrimRight(path, `\`)
	}

	path_ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidParameter, err.Error())
	}

	handle, err := windows.CreateFile(path_ptr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return nil, transportError("CreateFile "+path, err)
	}

	DebugPrint("Opened volume %v", path)

	return &VolumeSession{
		handle:      handle,
		name:        path,
		min_version: options.MinMajorVersion,
		max_version: options.MaxMajorVersion,
	}, nil
}

func transportError(op string, err error) error {
	errno, ok := err.(syscall.Errno)
	if ok && (errno == windows.ERROR_HANDLE_EOF ||
		errno == windows.ERROR_NO_MORE_ITEMS) {
		return ErrNoMoreItems
	}

	STATS.Inc_TransportErrors()
	code := uint32(0)
	if ok {
		code = uint32(errno)
	}
	return NewTransportError(op, code, err)
}

func (self *VolumeSession) ioctl(op string, code uint32,
	input []byte, output []byte) (int, error) {
	var input_ptr, output_ptr *byte
	if len(input) > 0 {
		input_ptr = &input[0]
	}
	if len(output) > 0 {
		output_ptr = &output[0]
	}

	var returned uint32
	err := windows.DeviceIoControl(self.handle, code,
		input_ptr, uint32(len(input)),
		output_ptr, uint32(len(output)),
		&returned, nil)
	if err != nil {
		return 0, transportError(op, err)
	}
	return int(returned), nil
}

func (self *VolumeSession) QueryJournal() (*JournalDescriptor, error) {
	output := make([]byte, USN_JOURNAL_DATA_V2_SIZE)
	n, err := self.ioctl("FSCTL_QUERY_USN_JOURNAL",
		FSCTL_QUERY_USN_JOURNAL, nil, output)
	if err != nil {
		return nil, err
	}
	return ParseJournalDescriptor(output[:n])
}

func (self *VolumeSession) CreateJournal(max_size, allocation_delta uint64) error {
	_, err := self.ioctl("FSCTL_CREATE_USN_JOURNAL",
		FSCTL_CREATE_USN_JOURNAL,
		encodeCreateJournalRequest(max_size, allocation_delta), nil)
	return err
}

// DeleteJournal waits for the delete to complete.
func (self *VolumeSession) DeleteJournal(journal_id uint64) error {
	_, err := self.ioctl("FSCTL_DELETE_USN_JOURNAL",
		FSCTL_DELETE_USN_JOURNAL,
		encodeDeleteJournalRequest(journal_id,
			USN_DELETE_FLAG_DELETE|USN_DELETE_FLAG_NOTIFY), nil)
	return err
}

func (self *VolumeSession) ReadJournalPage(journal_id uint64, start_usn int64,
	reason_mask uint32, buffer *Buffer) (int, error) {
	if buffer.Capacity() < USN_PAGE_HEADER_SIZE {
		return 0, ErrInvalidParameter
	}

	request := encodeReadJournalRequest(start_usn, reason_mask, journal_id,
		self.min_version, self.max_version)
	n, err := self.ioctl("FSCTL_READ_USN_JOURNAL",
		FSCTL_READ_USN_JOURNAL, request, buffer.Bytes())
	if err != nil {
		return 0, err
	}
	return n, buffer.SetLen(n)
}

func (self *VolumeSession) GetMFTRecord(
	file_reference_number uint64, buffer *Buffer) (int, error) {
	if buffer.Capacity() <= NTFS_FILE_RECORD_OUTPUT_HEADER_SIZE {
		return 0, ErrInvalidParameter
	}

	n, err := self.ioctl("FSCTL_GET_NTFS_FILE_RECORD",
		FSCTL_GET_NTFS_FILE_RECORD,
		encodeFileRecordRequest(file_reference_number), buffer.Bytes())
	if err != nil {
		return 0, err
	}
	return n, buffer.SetLen(n)
}

func (self *VolumeSession) GetVolumeData(buffer *Buffer) (int, error) {
	if buffer.Capacity() < NTFS_VOLUME_DATA_BUFFER_SIZE {
		return 0, ErrInvalidParameter
	}

	n, err := self.ioctl("FSCTL_GET_NTFS_VOLUME_DATA",
		FSCTL_GET_NTFS_VOLUME_DATA, nil, buffer.Bytes())
	if err != nil {
		return 0, err
	}
	return n, buffer.SetLen(n)
}

func (self *VolumeSession) Close() error {
	DebugPrint("Closing volume %v", self.name)
	err := windows.CloseHandle(self.handle)
	if err != nil {
		return transportError("CloseHandle", err)
	}
	return nil
}
