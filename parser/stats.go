package parser

import (
	"encoding/json"
	"sync"

	"github.com/Velocidex/ordereddict"
)

var (
	STATS = Stats{}
)

type Stats struct {
	mu sync.Mutex

	JournalPages       int
	JournalPageBytes   int64
	USN_RECORD         int
	MFT_FILE_RECORD    int
	NTFS_ATTRIBUTE     int
	FixUpRecord        int
	Malformed          int
	TransportErrors    int
	RecordCacheHits    int
	RecordCacheMisses  int
	AdministrativeCall int
}

func (self *Stats) DebugString() string {
	serialized, _ := json.MarshalIndent(self.Dict(), " ", " ")
	return string(serialized)
}

func (self *Stats) Dict() *ordereddict.Dict {
	self.mu.Lock()
	defer self.mu.Unlock()

	return ordereddict.NewDict().
		Set("JournalPages", self.JournalPages).
		Set("JournalPageBytes", self.JournalPageBytes).
		Set("USN_RECORD", self.USN_RECORD).
		Set("MFT_FILE_RECORD", self.MFT_FILE_RECORD).
		Set("NTFS_ATTRIBUTE", self.NTFS_ATTRIBUTE).
		Set("FixUpRecord", self.FixUpRecord).
		Set("Malformed", self.Malformed).
		Set("TransportErrors", self.TransportErrors).
		Set("RecordCacheHits", self.RecordCacheHits).
		Set("RecordCacheMisses", self.RecordCacheMisses).
		Set("AdministrativeCall", self.AdministrativeCall)
}

func (self *Stats) Inc_JournalPage(size int) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.JournalPages++
	self.JournalPageBytes += int64(size)
}

func (self *Stats) Inc_USN_RECORD() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.USN_RECORD++
}

func (self *Stats) Inc_MFT_FILE_RECORD() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.MFT_FILE_RECORD++
}

func (self *Stats) Inc_NTFS_ATTRIBUTE() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.NTFS_ATTRIBUTE++
}

func (self *Stats) Inc_FixUpRecord() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.FixUpRecord++
}

func (self *Stats) Inc_Malformed() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.Malformed++
}

func (self *Stats) Inc_TransportErrors() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.TransportErrors++
}

func (self *Stats) Inc_RecordCache(hit bool) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if hit {
		self.RecordCacheHits++
	} else {
		self.RecordCacheMisses++
	}
}

func (self *Stats) Inc_AdministrativeCall() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.AdministrativeCall++
}
