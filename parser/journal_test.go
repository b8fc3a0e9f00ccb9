package parser

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testJournalID = uint64(0x01d5aaaabbbbcccc)

type CursorTestSuite struct {
	suite.Suite

	session *MockSession
	options Options
}

func (self *CursorTestSuite) SetupTest() {
	self.session = &MockSession{}
	self.options = GetDefaultOptions()
}

func (self *CursorTestSuite) expectPage(start_usn int64, page []byte, err error) {
	self.session.On("ReadJournalPage",
		testJournalID, start_usn, uint32(USN_REASON_ALL)).
		Return(page, err).Once()
}

func (self *CursorTestSuite) newCursor(start_usn int64) *Cursor {
	cursor, err := NewCursor(self.session, testJournalID, start_usn, self.options)
	require.NoError(self.T(), err)
	return cursor
}

func (self *CursorTestSuite) TestPrefixOnlyPageExhausts() {
	self.expectPage(0, buildPage(100), nil)

	cursor := self.newCursor(0)
	assert.Equal(self.T(), CursorFresh, cursor.State())

	payload, err := cursor.FetchPage()
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(payload))

	assert.Equal(self.T(), CursorExhausted, cursor.State())
	assert.Equal(self.T(), int64(0), cursor.NextUsn())
	assert.Equal(self.T(), int64(100), cursor.LastObservedUsn())

	// Exhausted cursors do not touch the session again.
	_, err = cursor.FetchPage()
	assert.True(self.T(), errors.Is(err, ErrNoMoreItems))
	self.session.AssertNumberOfCalls(self.T(), "ReadJournalPage", 1)
}

func (self *CursorTestSuite) TestShortPageExhausts() {
	// Fewer bytes than the usn prefix.
	self.expectPage(0x200, []byte{1, 2, 3, 4}, nil)

	cursor := self.newCursor(0x200)
	payload, err := cursor.FetchPage()
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(payload))

	assert.Equal(self.T(), CursorExhausted, cursor.State())
	assert.Equal(self.T(), int64(0), cursor.NextUsn())

	// No prefix was seen.
	assert.Equal(self.T(), int64(0), cursor.LastObservedUsn())

	_, err = cursor.FetchPage()
	assert.True(self.T(), errors.Is(err, ErrNoMoreItems))
	self.session.AssertNumberOfCalls(self.T(), "ReadJournalPage", 1)
}

func (self *CursorTestSuite) TestNoMoreItemsExhausts() {
	self.expectPage(0x200, nil, ErrNoMoreItems)

	cursor := self.newCursor(0x200)
	payload, err := cursor.FetchPage()
	assert.NoError(self.T(), err)
	assert.Nil(self.T(), payload)
	assert.Equal(self.T(), CursorExhausted, cursor.State())
	assert.Equal(self.T(), int64(0), cursor.NextUsn())
}

func (self *CursorTestSuite) TestEnumerateAcrossPages() {
	self.expectPage(0x100, buildPage(0x1a0,
		buildUSNRecordV2(testUSNRecord{usn: 0x100, name: "a.txt"}),
		buildUSNRecordV2(testUSNRecord{usn: 0x148, name: "b.txt"})), nil)
	self.expectPage(0x1a0, buildPage(0x1f0,
		buildUSNRecordV3(testUSNRecord{usn: 0x1a0, name: "c.txt"})), nil)
	self.expectPage(0x1f0, buildPage(0x1f0), nil)

	cursor := self.newCursor(0x100)

	usns := []int64{}
	names := []string{}
	err := cursor.EnumerateRecords(func(record *USN_RECORD) error {
		usns = append(usns, record.Usn())
		names = append(names, record.Filename())
		return nil
	})
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), []int64{0x100, 0x148, 0x1a0}, usns)
	assert.Equal(self.T(), []string{"a.txt", "b.txt", "c.txt"}, names)

	assert.Equal(self.T(), CursorExhausted, cursor.State())
	assert.Equal(self.T(), int64(0x1f0), cursor.LastObservedUsn())
	self.session.AssertExpectations(self.T())
}

func (self *CursorTestSuite) TestStopWalkEndsEnumeration() {
	self.expectPage(0x100, buildPage(0x1a0,
		buildUSNRecordV2(testUSNRecord{usn: 0x100, name: "a.txt"}),
		buildUSNRecordV2(testUSNRecord{usn: 0x148, name: "b.txt"})), nil)

	cursor := self.newCursor(0x100)

	count := 0
	err := cursor.EnumerateRecords(func(record *USN_RECORD) error {
		count++
		return ErrStopWalk
	})
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 1, count)

	// The next page was never requested.
	self.session.AssertNumberOfCalls(self.T(), "ReadJournalPage", 1)
	assert.Equal(self.T(), CursorPaging, cursor.State())
	assert.Equal(self.T(), int64(0x1a0), cursor.NextUsn())
}

func (self *CursorTestSuite) TestTransportErrorLeavesCursor() {
	self.expectPage(0x100, nil, NewTransportError(
		"ReadJournalPage", 5, errors.New("Access denied")))
	self.expectPage(0x100, buildPage(0x148,
		buildUSNRecordV2(testUSNRecord{usn: 0x100, name: "a.txt"})), nil)

	cursor := self.newCursor(0x100)

	_, err := cursor.FetchPage()
	assert.True(self.T(), errors.Is(err, ErrTransport))

	transport_err := &TransportError{}
	require.True(self.T(), errors.As(err, &transport_err))
	assert.Equal(self.T(), uint32(5), transport_err.Code)

	assert.Equal(self.T(), CursorFresh, cursor.State())
	assert.Equal(self.T(), int64(0x100), cursor.NextUsn())

	// A retry starts from the same place.
	payload, err := cursor.FetchPage()
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0x48, len(payload))
	assert.Equal(self.T(), int64(0x148), cursor.NextUsn())
}

func (self *CursorTestSuite) TestPlainErrorsBecomeTransportErrors() {
	self.expectPage(0x100, nil, errors.New("device gone"))

	cursor := self.newCursor(0x100)
	_, err := cursor.FetchPage()
	assert.True(self.T(), errors.Is(err, ErrTransport))
}

func (self *CursorTestSuite) TestNonAdvancingPageIsMalformed() {
	self.expectPage(0x100, buildPage(0x100,
		buildUSNRecordV2(testUSNRecord{usn: 0x100, name: "a.txt"})), nil)

	cursor := self.newCursor(0x100)
	_, err := cursor.FetchPage()
	assert.True(self.T(), errors.Is(err, ErrMalformedRecord))
	assert.Equal(self.T(), int64(0x100), cursor.NextUsn())
}

func (self *CursorTestSuite) TestMalformedRecordStopsEnumeration() {
	good := buildUSNRecordV2(testUSNRecord{usn: 0x100, name: "a.txt"})
	bad := buildUSNRecordV2(testUSNRecord{usn: 0x148, name: "b.txt"})
	put16(bad, 4, 9)

	self.expectPage(0x100, buildPage(0x1a0, good, bad), nil)

	cursor := self.newCursor(0x100)

	usns := []int64{}
	err := cursor.EnumerateRecords(func(record *USN_RECORD) error {
		usns = append(usns, record.Usn())
		return nil
	})
	assert.True(self.T(), errors.Is(err, ErrMalformedRecord))
	assert.Equal(self.T(), []int64{0x100}, usns)
}

func (self *CursorTestSuite) TestNewCursorChecksArguments() {
	_, err := NewCursor(nil, testJournalID, 0, self.options)
	assert.True(self.T(), errors.Is(err, ErrInvalidParameter))

	_, err = NewCursor(self.session, testJournalID, -1, self.options)
	assert.True(self.T(), errors.Is(err, ErrInvalidParameter))

	self.options.PageBufferSize = USN_PAGE_HEADER_SIZE
	_, err = NewCursor(self.session, testJournalID, 0, self.options)
	assert.True(self.T(), errors.Is(err, ErrInvalidParameter))
}

func TestCursor(t *testing.T) {
	suite.Run(t, &CursorTestSuite{})
}

func testDescriptor() *JournalDescriptor {
	return &JournalDescriptor{
		JournalID:       testJournalID,
		FirstUsn:        0x1000,
		NextUsn:         0x8000,
		MaxSize:         0x2000000,
		AllocationDelta: 0x400000,
	}
}

func TestResetJournal(t *testing.T) {
	session := &MockSession{}
	session.On("QueryJournal").Return(testDescriptor(), nil).Once()
	session.On("DeleteJournal", testJournalID).Return(nil).Once()
	session.On("CreateJournal", uint64(0x2000000), uint64(0x400000)).
		Return(nil).Once()

	old, err := ResetJournal(session)
	assert.NoError(t, err)
	assert.Equal(t, testJournalID, old.JournalID)
	session.AssertExpectations(t)
}

func TestPartialJournalReset(t *testing.T) {
	create_err := NewTransportError("CreateJournal", 112,
		errors.New("Not enough space"))

	session := &MockSession{}
	session.On("QueryJournal").Return(testDescriptor(), nil).Once()
	session.On("DeleteJournal", testJournalID).Return(nil).Once()
	session.On("CreateJournal", mock.Anything, mock.Anything).
		Return(create_err).Once()

	old, err := ResetJournal(session)
	assert.True(t, errors.Is(err, ErrPartialJournalReset))
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, testJournalID, old.JournalID)

	partial := &PartialResetError{}
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, uint64(0x2000000), partial.MaxSize)
	assert.Equal(t, uint64(0x400000), partial.AllocationDelta)

	// Nothing is retried.
	session.AssertNumberOfCalls(t, "CreateJournal", 1)
	session.AssertNumberOfCalls(t, "DeleteJournal", 1)
	session.AssertNumberOfCalls(t, "QueryJournal", 1)
}

func TestResetJournalDeleteFails(t *testing.T) {
	session := &MockSession{}
	session.On("QueryJournal").Return(testDescriptor(), nil).Once()
	session.On("DeleteJournal", testJournalID).
		Return(NewTransportError("DeleteJournal", 5, nil)).Once()

	_, err := ResetJournal(session)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.False(t, errors.Is(err, ErrPartialJournalReset))
	session.AssertNotCalled(t, "CreateJournal", mock.Anything, mock.Anything)
}
