package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type CursorState int

const (
	// No page read yet.
	CursorFresh CursorState = iota

	// At least one page was read and more may follow.
	CursorPaging

	// The journal has no more records past the cursor.
	CursorExhausted
)

func (self CursorState) String() string {
	switch self {
	case CursorFresh:
		return "Fresh"
	case CursorPaging:
		return "Paging"
	case CursorExhausted:
		return "Exhausted"
	}
	return fmt.Sprintf("CursorState(%d)", int(self))
}

// A Cursor pages through the change journal. Each page starts with
// the usn to continue from and the cursor advances to it. The cursor
// owns its page buffer, payloads returned by FetchPage() are only
// valid until the next call.
type Cursor struct {
	session     Session
	journal_id  uint64
	reason_mask uint32

	next_usn      int64
	last_observed int64
	state         CursorState

	buffer         *Buffer
	max_name_bytes int
}

func NewCursor(session Session, journal_id uint64, start_usn int64,
	options Options) (*Cursor, error) {
	if session == nil || start_usn < 0 {
		return nil, ErrInvalidParameter
	}

	buffer, err := NewBuffer(options.PageBufferSize)
	if err != nil {
		return nil, err
	}

	if buffer.Capacity() <= USN_PAGE_HEADER_SIZE {
		return nil, errors.Wrapf(ErrInvalidParameter,
			"page buffer of %v bytes can not hold a record",
			buffer.Capacity())
	}

	return &Cursor{
		session:        session,
		journal_id:     journal_id,
		reason_mask:    USN_REASON_ALL,
		next_usn:       start_usn,
		state:          CursorFresh,
		buffer:         buffer,
		max_name_bytes: options.MaxFileNameBytes,
	}, nil
}

func (self *Cursor) State() CursorState {
	return self.state
}

// NextUsn is where the next read starts. It is 0 once the cursor is
// exhausted.
func (self *Cursor) NextUsn() int64 {
	return self.next_usn
}

// LastObservedUsn is the last page prefix the cursor saw, including
// the prefix of the final empty page. This is where a later cursor
// should resume to only see new records.
func (self *Cursor) LastObservedUsn() int64 {
	return self.last_observed
}

func (self *Cursor) exhaust() {
	self.next_usn = 0
	self.state = CursorExhausted
}

// FetchPage reads the next page and returns its payload without the
// usn prefix. An empty payload with no error means the journal is
// exhausted. On transport errors the cursor is unchanged so the call
// may be retried.
func (self *Cursor) FetchPage() ([]byte, error) {
	if self.state == CursorExhausted {
		return nil, ErrNoMoreItems
	}

	start_usn := self.next_usn
	_ = self.buffer.SetLen(0)

	n, err := self.session.ReadJournalPage(
		self.journal_id, start_usn, self.reason_mask, self.buffer)
	if err != nil {
		if errors.Is(err, ErrNoMoreItems) {
			DebugPrint("FetchPage: no more items after %#x", start_usn)
			self.exhaust()
			return nil, nil
		}

		if !errors.Is(err, ErrTransport) {
			err = NewTransportError("ReadJournalPage", 0, err)
		}
		return nil, err
	}

	if n < 0 || n > self.buffer.Capacity() {
		return nil, errors.Wrapf(ErrBufferOverflow,
			"transport reported %v bytes for a %v byte buffer",
			n, self.buffer.Capacity())
	}

	STATS.Inc_JournalPage(n)
	page := self.buffer.Bytes()[:n:n]

	if n >= USN_PAGE_HEADER_SIZE {
		self.last_observed = getInt64(page, 0)
	}

	// Only a prefix (or less) - nothing new in the journal.
	if n <= USN_PAGE_HEADER_SIZE {
		self.exhaust()
		return nil, nil
	}

	next_usn := getInt64(page, 0)
	if next_usn <= start_usn {
		return nil, malformed("USN_PAGE", 0,
			"next usn %#x does not advance past %#x", next_usn, start_usn)
	}

	DebugFields("FetchPage", logrus.Fields{
		"StartUsn": start_usn,
		"NextUsn":  next_usn,
		"Bytes":    n,
	})

	self.next_usn = next_usn
	self.state = CursorPaging
	return page[USN_PAGE_HEADER_SIZE:], nil
}

// EnumerateRecords visits every record from the cursor position until
// the journal is exhausted. The visitor may return ErrStopWalk to end
// the enumeration early.
func (self *Cursor) EnumerateRecords(visitor func(record *USN_RECORD) error) error {
	for self.state != CursorExhausted {
		payload, err := self.FetchPage()
		if err != nil {
			return err
		}

		stopped := false
		err = walkUSNRecords(payload, self.max_name_bytes,
			func(record *USN_RECORD) error {
				err := visitor(record)
				if errors.Is(err, ErrStopWalk) {
					stopped = true
				}
				return err
			})
		if err != nil {
			return err
		}

		if stopped {
			return nil
		}
	}

	return nil
}

// ResetJournal deletes the journal and creates it again with the
// same maximum size and allocation delta. If the create fails after
// the delete succeeded the volume has no journal and the error
// matches ErrPartialJournalReset. Nothing is retried.
//
// The returned descriptor is from before the reset, callers must
// query again for the new journal.
func ResetJournal(session Session) (*JournalDescriptor, error) {
	old, err := session.QueryJournal()
	if err != nil {
		return nil, errors.Wrap(err, "ResetJournal: query")
	}

	err = session.DeleteJournal(old.JournalID)
	if err != nil {
		return nil, errors.Wrap(err, "ResetJournal: delete")
	}

	err = session.CreateJournal(old.MaxSize, old.AllocationDelta)
	if err != nil {
		Logger.WithFields(logrus.Fields{
			"JournalID":       fmt.Sprintf("%#x", old.JournalID),
			"MaxSize":         old.MaxSize,
			"AllocationDelta": old.AllocationDelta,
		}).Error("Change journal deleted but not recreated")

		return old, &PartialResetError{
			JournalID:       old.JournalID,
			MaxSize:         old.MaxSize,
			AllocationDelta: old.AllocationDelta,
			Err:             err,
		}
	}

	return old, nil
}

// Returns a channel which will send USN records on. We start at
// start_usn (0 for the start of the journal) and continue until the
// journal is exhausted.
func ParseUSN(ctx context.Context, ntfs_ctx *NTFSContext, start_usn int64) chan *USN_RECORD {
	output := make(chan *USN_RECORD)

	go func() {
		defer close(output)

		cursor, err := ntfs_ctx.NewCursor(start_usn)
		if err != nil {
			DebugPrint("ParseUSN error: %v", err)
			return
		}

		count := 0
		defer func() {
			DebugPrint("ParseUSN: emitted %v records", count)
		}()

		err = cursor.EnumerateRecords(func(record *USN_RECORD) error {
			select {
			case <-ctx.Done():
				return ErrStopWalk

			case output <- record.Copy():
				count++
			}
			return nil
		})
		if err != nil {
			DebugPrint("ParseUSN error: %v", err)
		}
	}()

	return output
}

// WatchUSN polls the journal every period seconds and sends new
// records. With start_usn 0 only records written after the call are
// sent.
func WatchUSN(ctx context.Context, ntfs_ctx *NTFSContext,
	start_usn int64, period int) chan *USN_RECORD {
	output := make(chan *USN_RECORD)

	// Default 30 second watch frequency.
	if period == 0 {
		period = 30
	}

	go func() {
		defer close(output)

		next_usn := start_usn
		journal_id := uint64(0)

		for {
			// Purge all caching in the context before we read it so
			// we always get fresh data.
			ntfs_ctx.Purge()

			descriptor, err := ntfs_ctx.QueryJournal()
			if err != nil {
				DebugPrint("WatchUSN error: %v", err)

			} else {
				// The journal was recreated, start from its
				// beginning.
				if journal_id != 0 && journal_id != descriptor.JournalID {
					Logger.WithFields(logrus.Fields{
						"Old": fmt.Sprintf("%#x", journal_id),
						"New": fmt.Sprintf("%#x", descriptor.JournalID),
					}).Warn("Change journal was recreated")
					next_usn = descriptor.FirstUsn
				}
				journal_id = descriptor.JournalID

				if next_usn == 0 {
					next_usn = descriptor.NextUsn
				}

				count, err := watchOnce(ctx, ntfs_ctx, output, &next_usn)
				if err != nil {
					DebugPrint("WatchUSN error: %v", err)
				}
				DebugPrint("Emitted %v events\n", count)
			}

			select {
			case <-ctx.Done():
				return

			case <-time.After(time.Second * time.Duration(period)):
			}
		}
	}()

	return output
}

func watchOnce(ctx context.Context, ntfs_ctx *NTFSContext,
	output chan *USN_RECORD, next_usn *int64) (int, error) {
	DebugPrint("Checking usn from %#08x\n", *next_usn)

	cursor, err := ntfs_ctx.NewCursor(*next_usn)
	if err != nil {
		return 0, err
	}

	count := 0
	err = cursor.EnumerateRecords(func(record *USN_RECORD) error {
		select {
		case <-ctx.Done():
			return ErrStopWalk

		case output <- record.Copy():
			count++
		}
		return nil
	})

	// Resume after the last page we saw, even if the enumeration
	// failed part way.
	if cursor.LastObservedUsn() > *next_usn {
		*next_usn = cursor.LastObservedUsn()
	}
	return count, err
}
