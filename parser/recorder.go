package parser

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Recorder wraps a session and saves every response under a
// directory. Responses already in the directory are replayed without
// calling the delegate, so a recording made on a live volume can be
// replayed anywhere. With no delegate the recorder only replays.
type Recorder struct {
	path string

	// Delegate session
	session Session
}

func NewRecorder(path string, session Session) (*Recorder, error) {
	err := os.MkdirAll(path, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "NewRecorder")
	}
	return &Recorder{path: path, session: session}, nil
}

func (self *Recorder) filename(name string) string {
	return filepath.Join(self.path, name)
}

// replay returns (nil, nil) when nothing was recorded under name.
func (self *Recorder) replay(name string) ([]byte, error) {
	data, err := ioutil.ReadFile(self.filename(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (self *Recorder) record(name string, data []byte) {
	err := ioutil.WriteFile(self.filename(name), data, 0600)
	if err != nil {
		DebugPrint("Recorder: unable to write %v: %v", name, err)
	}
}

func (self *Recorder) delegate(name string) (Session, error) {
	if self.session == nil {
		return nil, errors.Wrapf(ErrNotSupported,
			"Recorder: no recording for %v", name)
	}
	return self.session, nil
}

func (self *Recorder) QueryJournal() (*JournalDescriptor, error) {
	name := "journal.bin"
	data, err := self.replay(name)
	if err != nil {
		return nil, err
	}
	if data != nil {
		return ParseJournalDescriptor(data)
	}

	session, err := self.delegate(name)
	if err != nil {
		return nil, err
	}

	descriptor, err := session.QueryJournal()
	if err != nil {
		return nil, err
	}
	self.record(name, descriptor.Encode())
	return descriptor, nil
}

// Administrative calls always go to the delegate. The recorded
// descriptor is dropped since it is now stale.
func (self *Recorder) CreateJournal(max_size, allocation_delta uint64) error {
	session, err := self.delegate("CreateJournal")
	if err != nil {
		return err
	}
	os.Remove(self.filename("journal.bin"))
	return session.CreateJournal(max_size, allocation_delta)
}

func (self *Recorder) DeleteJournal(journal_id uint64) error {
	session, err := self.delegate("DeleteJournal")
	if err != nil {
		return err
	}
	os.Remove(self.filename("journal.bin"))
	return session.DeleteJournal(journal_id)
}

// An empty recording means the delegate reported the end of the
// journal.
func (self *Recorder) ReadJournalPage(journal_id uint64, start_usn int64,
	reason_mask uint32, buffer *Buffer) (int, error) {
	name := fmt.Sprintf("usn_%016x_%016x.bin", journal_id, start_usn)
	data, err := self.replay(name)
	if err != nil {
		return 0, err
	}

	if data != nil {
		return self.fill(data, buffer, ErrNoMoreItems)
	}

	session, err := self.delegate(name)
	if err != nil {
		return 0, err
	}

	n, err := session.ReadJournalPage(journal_id, start_usn, reason_mask, buffer)
	if errors.Is(err, ErrNoMoreItems) {
		self.record(name, nil)
		return n, err
	}
	if err != nil {
		return n, err
	}

	self.record(name, buffer.Bytes()[:n])
	return n, nil
}

func (self *Recorder) GetMFTRecord(
	file_reference_number uint64, buffer *Buffer) (int, error) {
	name := fmt.Sprintf("mft_%016x.bin", file_reference_number)
	data, err := self.replay(name)
	if err != nil {
		return 0, err
	}

	if data != nil {
		return self.fill(data, buffer, ErrInvalidParameter)
	}

	session, err := self.delegate(name)
	if err != nil {
		return 0, err
	}

	n, err := session.GetMFTRecord(file_reference_number, buffer)
	if err != nil {
		return n, err
	}

	self.record(name, buffer.Bytes()[:n])
	return n, nil
}

func (self *Recorder) GetVolumeData(buffer *Buffer) (int, error) {
	name := "volume.bin"
	data, err := self.replay(name)
	if err != nil {
		return 0, err
	}

	if data != nil {
		return self.fill(data, buffer, ErrInvalidVolumeData)
	}

	session, err := self.delegate(name)
	if err != nil {
		return 0, err
	}

	n, err := session.GetVolumeData(buffer)
	if err != nil {
		return n, err
	}

	self.record(name, buffer.Bytes()[:n])
	return n, nil
}

// fill copies a recording into the buffer. Empty recordings replay
// as empty_err.
func (self *Recorder) fill(data []byte, buffer *Buffer, empty_err error) (int, error) {
	if len(data) == 0 {
		return 0, empty_err
	}

	if len(data) > buffer.Capacity() {
		return 0, NewTransportError("Recorder", ERROR_INSUFFICIENT_BUFFER,
			ErrBufferOverflow)
	}

	_ = buffer.SetLen(0)
	err := buffer.CopyIn(0, data)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func (self *Recorder) Flush() {
	flusher, ok := self.session.(Flusher)
	if ok {
		flusher.Flush()
	}
}

func (self *Recorder) Close() error {
	if self.session == nil {
		return nil
	}
	return self.session.Close()
}
