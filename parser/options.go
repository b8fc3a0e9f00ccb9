package parser

import (
	"io/ioutil"

	"github.com/Velocidex/yaml/v2"
	"github.com/pkg/errors"
)

const (
	// Default size of a journal read. The OS fills as much of it
	// as it wants.
	DefaultPageBufferSize = 64 * 1024

	// Longest file name we copy out of a USN record, in bytes
	// (MAX_PATH wide characters). NTFS names are at most 255
	// characters so this only truncates corrupt records.
	MaxFileNameBytes = 260 * 2

	DefaultRecordSize = 0x400
)

type Options struct {
	// Size of the buffer used for each journal page read.
	PageBufferSize int `json:"page_buffer_size"`

	// Cap for USN record file names in bytes.
	MaxFileNameBytes int `json:"max_file_name_bytes"`

	// Start enumerating from this USN. If 0 we start from the
	// journal's FirstUsn.
	StartUsn int64 `json:"start_usn"`

	// Range of USN record versions requested from the OS. When
	// MaxMajorVersion is 0 the legacy (v2 only) read request is
	// used.
	MinMajorVersion uint16 `json:"min_major_version"`
	MaxMajorVersion uint16 `json:"max_major_version"`

	// Number of MFT record summaries kept for path resolution. 0
	// disables the cache and every lookup reads the record.
	RecordCacheSize int `json:"record_cache_size"`

	// Number of pages cached by each reader of a collected $MFT or
	// $J.
	PageCacheSize int `json:"page_cache_size"`

	// Size of MFT records when reading a raw $MFT dump.
	RecordSize int64 `json:"record_size"`

	// Poll period in seconds for WatchUSN
	WatchPeriod int `json:"watch_period"`
}

func GetDefaultOptions() Options {
	return Options{
		PageBufferSize:   DefaultPageBufferSize,
		MaxFileNameBytes: MaxFileNameBytes,
		MinMajorVersion:  2,
		MaxMajorVersion:  3,
		RecordCacheSize:  1000,
		PageCacheSize:    DefaultPageCacheSize,
		RecordSize:       DefaultRecordSize,
		WatchPeriod:      30,
	}
}

// LoadOptions reads a YAML file over the default options. Fields
// missing from the file keep their defaults.
func LoadOptions(filename string) (Options, error) {
	result := GetDefaultOptions()

	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return result, errors.Wrap(err, "LoadOptions")
	}

	err = yaml.UnmarshalStrict(data, &result)
	if err != nil {
		return result, errors.Wrapf(err, "LoadOptions %v", filename)
	}

	return result, result.Validate()
}

func (self Options) Validate() error {
	if self.PageBufferSize <= 8 || self.PageBufferSize > MaxBufferCapacity {
		return errors.Wrapf(ErrInvalidParameter,
			"page_buffer_size %v out of range", self.PageBufferSize)
	}

	if self.MaxFileNameBytes <= 0 {
		return errors.Wrapf(ErrInvalidParameter,
			"max_file_name_bytes %v out of range", self.MaxFileNameBytes)
	}

	if self.MaxMajorVersion != 0 && self.MinMajorVersion > self.MaxMajorVersion {
		return errors.Wrapf(ErrInvalidParameter,
			"min_major_version %v > max_major_version %v",
			self.MinMajorVersion, self.MaxMajorVersion)
	}

	if self.RecordCacheSize < 0 {
		return errors.Wrapf(ErrInvalidParameter,
			"record_cache_size %v out of range", self.RecordCacheSize)
	}

	if self.PageCacheSize <= 0 {
		return errors.Wrapf(ErrInvalidParameter,
			"page_cache_size %v out of range", self.PageCacheSize)
	}

	if self.RecordSize < MFT_FILE_RECORD_HEADER_SIZE ||
		self.RecordSize > MaxBufferCapacity {
		return errors.Wrapf(ErrInvalidParameter,
			"record_size %v out of range", self.RecordSize)
	}

	return nil
}
