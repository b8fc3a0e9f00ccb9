package parser

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/sebdah/goldie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testFileRef   = testReference(40, 2)
	testParentRef = testReference(30, 3)
)

func buildMixedPayload() []byte {
	return concat(
		buildUSNRecordV2(testUSNRecord{
			usn: 0x1000, frn: testFileRef, parent: testParentRef,
			reason: 0x80000102, security_id: 0x10, file_attribute: 0x20,
			name: "file.txt"}),
		buildUSNRecordV3(testUSNRecord{
			usn: 0x1050, frn: 0x28, parent: 0x1e,
			reason: 0x2, file_attribute: 0x20,
			name: "file.txt"}),
		buildUSNRecordV4(testUSNRecord{
			usn: 0x10b0, frn: 0x28, parent: 0x1e, reason: 0x1},
			USN_RECORD_EXTENT{Offset: 0, Length: 0x1000},
			USN_RECORD_EXTENT{Offset: 0x2000, Length: 0x1000}),
	)
}

func TestWalkMixedVersions(t *testing.T) {
	payload := buildMixedPayload()

	records := []*USN_RECORD{}
	err := WalkUSNRecords(payload, func(record *USN_RECORD) error {
		records = append(records, record)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, len(records))

	// Version 2 carries an 8 byte reference.
	v2 := records[0]
	assert.NotNil(t, v2.V2)
	assert.Equal(t, uint16(2), v2.MajorVersion())
	assert.False(t, v2.FileReferenceNumber().Wide)
	assert.Equal(t, uint64(40), v2.FileReferenceNumber().MFTId())
	assert.Equal(t, uint16(2), v2.FileReferenceNumber().Sequence())
	assert.Equal(t, uint64(30), v2.ParentFileReferenceNumber().MFTId())
	assert.Equal(t, int64(0x1000), v2.Usn())
	assert.True(t, testTime.Equal(v2.TimeStamp().Time))
	assert.Equal(t, []string{"CLOSE", "DATA_EXTEND", "FILE_CREATE"},
		v2.Reason().Values())
	assert.Equal(t, uint32(0x10), v2.SecurityId())
	assert.True(t, v2.FileAttributes().IsSet("ARCHIVE"))
	assert.Equal(t, "file.txt", v2.Filename())
	assert.False(t, v2.FilenameTruncated())

	// Version 3 carries an opaque 16 byte id.
	v3 := records[1]
	assert.NotNil(t, v3.V3)
	assert.True(t, v3.FileReferenceNumber().Wide)
	assert.Equal(t, "00000000000000000000000000000028",
		v3.FileReferenceNumber().String())
	assert.Equal(t, int64(0x1050), v3.Usn())
	assert.Equal(t, int64(0x50), v3.Offset)
	assert.Equal(t, "file.txt", v3.Filename())

	// Version 4 has extents and no name.
	v4 := records[2]
	assert.NotNil(t, v4.V4)
	assert.False(t, v4.HasFileName())
	assert.Equal(t, "", v4.Filename())
	assert.True(t, v4.TimeStamp().IsZero())
	assert.Equal(t, []USN_RECORD_EXTENT{
		{Offset: 0, Length: 0x1000},
		{Offset: 0x2000, Length: 0x1000},
	}, v4.Extents())
}

func TestWalkUSNRecordsIsRepeatable(t *testing.T) {
	payload := buildMixedPayload()
	original := append([]byte{}, payload...)

	describe := func() []string {
		result := []string{}
		err := WalkUSNRecords(payload, func(record *USN_RECORD) error {
			result = append(result, fmt.Sprintf("%#x %v %#x %q",
				record.Offset, record.MajorVersion(), record.Usn(),
				record.Filename()))
			return nil
		})
		require.NoError(t, err)
		return result
	}

	first := describe()
	assert.Equal(t, 3, len(first))
	assert.Equal(t, first, describe())

	// Walking never modifies the payload.
	assert.Equal(t, original, payload)
}

func TestUSNRecordDebugString(t *testing.T) {
	result := ""
	err := WalkUSNRecords(buildMixedPayload(), func(record *USN_RECORD) error {
		result += record.DebugString()
		return nil
	})
	require.NoError(t, err)

	goldie.Assert(t, "TestUSNRecordDebugString", []byte(result))
}

func TestWalkTruncatedLastRecord(t *testing.T) {
	first := buildUSNRecordV2(testUSNRecord{usn: 0x10, name: "a.txt"})
	second := buildUSNRecordV2(testUSNRecord{usn: 0x20, name: "b.txt"})

	// The second record claims more bytes than the page holds.
	payload := concat(first, second[:len(second)-8])

	visited := []int64{}
	err := WalkUSNRecords(payload, func(record *USN_RECORD) error {
		visited = append(visited, record.Usn())
		return nil
	})

	assert.True(t, errors.Is(err, ErrMalformedRecord))
	assert.Equal(t, []int64{0x10}, visited)

	malformed_err := &MalformedRecordError{}
	require.True(t, errors.As(err, &malformed_err))
	assert.Equal(t, int64(len(first)), malformed_err.Offset)
}

func TestWalkRejectsBadRecords(t *testing.T) {
	good := buildUSNRecordV2(testUSNRecord{usn: 0x10, name: "a.txt"})

	bad_version := append([]byte{}, good...)
	put16(bad_version, 4, 5)

	zero_length := append([]byte{}, good...)
	put32(zero_length, 0, 0)

	too_short := append([]byte{}, good...)
	put32(too_short, 0, USN_RECORD_COMMON_HEADER_SIZE)

	name_outside := append([]byte{}, good...)
	put16(name_outside, 58, uint16(len(good)+2))

	for _, payload := range [][]byte{
		bad_version, zero_length, too_short, name_outside, good[:4],
	} {
		count := 0
		err := WalkUSNRecords(payload, func(record *USN_RECORD) error {
			count++
			return nil
		})
		assert.True(t, errors.Is(err, ErrMalformedRecord))
		assert.Equal(t, 0, count)
	}

	// An empty payload has no records.
	assert.NoError(t, WalkUSNRecords(nil, func(record *USN_RECORD) error {
		t.Fatalf("Unexpected record")
		return nil
	}))
}

func TestDecodeTruncatesLongNames(t *testing.T) {
	record := buildUSNRecordV2(testUSNRecord{name: "longfilename.txt"})

	decoded, err := DecodeUSNRecord(record, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, "long", decoded.Filename())
	assert.True(t, decoded.FilenameTruncated())

	// A name running past the record is clamped to the record.
	put16(record, 56, 0x100)
	decoded, err = DecodeUSNRecord(record, 0, MaxFileNameBytes)
	require.NoError(t, err)
	assert.Equal(t, "longfilename.txt", decoded.Filename())
	assert.True(t, decoded.FilenameTruncated())
}

func TestWalkStopsEarly(t *testing.T) {
	count := 0
	err := WalkUSNRecords(buildMixedPayload(), func(record *USN_RECORD) error {
		count++
		return ErrStopWalk
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	// Other visitor errors are returned as is.
	visitor_err := errors.New("visitor failed")
	err = WalkUSNRecords(buildMixedPayload(), func(record *USN_RECORD) error {
		return visitor_err
	})
	assert.Equal(t, visitor_err, err)
}

func TestCollectedRecordsOutliveThePayload(t *testing.T) {
	payload := buildMixedPayload()

	records, err := CollectUSNRecords(payload)
	require.NoError(t, err)
	require.Equal(t, 3, len(records))

	for i := range payload {
		payload[i] = 0xff
	}

	assert.Equal(t, int64(0x1000), records[0].Usn())
	assert.Equal(t, "file.txt", records[0].Filename())
	assert.Equal(t, int64(0x10b0), records[2].Usn())
	assert.Equal(t, 2, len(records[2].Extents()))
}

func TestModelUSNRecord(t *testing.T) {
	records, err := CollectUSNRecords(buildMixedPayload())
	require.NoError(t, err)

	row := ModelUSNRecord(records[0])
	value, pres := row.Get("Filename")
	assert.True(t, pres)
	assert.Equal(t, "file.txt", value)

	value, _ = row.Get("MFTId")
	assert.Equal(t, uint64(40), value)

	value, _ = row.Get("Version")
	assert.Equal(t, "2.0", value)

	// v4 rows carry extents instead of a name.
	row = ModelUSNRecord(records[2])
	_, pres = row.Get("Filename")
	assert.False(t, pres)

	_, pres = row.Get("Extents")
	assert.True(t, pres)
}
