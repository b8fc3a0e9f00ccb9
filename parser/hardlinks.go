/* This code walks $FILE_NAME parent references to discover all the
   paths an MFT record is known by.

   In NTFS a file (MFT record) may exist in multiple directories,
   this is called a hardlink. Each link adds a $FILE_NAME attribute
   pointing at a different parent.

   USN records only carry the name of the file and the reference of
   its parent directory so the parent is resolved through the MFT
   and the record's own name is appended.
*/

package parser

import (
	"fmt"
	"strings"
)

const (
	// The root directory is always MFT entry 5
	ROOT_MFT_ID = 5

	DefaultMaxLinks          = 20
	DefaultMaxDirectoryDepth = 50
)

type pathVisitor struct {
	Paths [][]string
	Max   int
}

func (self *pathVisitor) Add(idx int, depth int) int {
	self.Paths = append(self.Paths,
		append([]string{}, self.Paths[idx][:depth]...))
	return len(self.Paths) - 1
}

func (self *pathVisitor) AddComponent(idx int, component string) {
	self.Paths[idx] = append(self.Paths[idx], component)
}

// Components are collected leaf first.
func (self *pathVisitor) Components() [][]string {
	for _, p := range self.Paths {
		for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
			p[i], p[j] = p[j], p[i]
		}
	}
	return self.Paths
}

// GetHardLinks returns the path components of every link to the MFT
// entry. Broken links end with an "<Err>" component.
func GetHardLinks(ntfs *NTFSContext, mft_id uint64, max int) [][]string {
	visitor := &pathVisitor{
		Paths: [][]string{[]string{}},
		Max:   max,
	}

	if mft_id == ROOT_MFT_ID {
		return visitor.Paths
	}

	summary, err := ntfs.GetMFTSummary(mft_id)
	if err != nil {
		return [][]string{{err.Error(), "<Err>"}}
	}
	getNames(ntfs, summary, visitor, 0, 0)

	return visitor.Components()
}

func getNames(ntfs *NTFSContext,
	summary *MFTEntrySummary, visitor *pathVisitor, idx, depth int) {

	if depth > ntfs.MaxDirectoryDepth {
		visitor.AddComponent(idx, "<DirTooDeep>")
		visitor.AddComponent(idx, "<Err>")
		return
	}

	// Skip DOS short names, they duplicate the long name.
	filenames := []FNSummary{}
	for _, fn := range summary.Filenames {
		switch fn.NameType {
		case "Win32", "DOS+Win32", "POSIX":
			filenames = append(filenames, fn)
		}
	}

	for i, fn := range filenames {
		// The first name continues the same path but the next
		// ones add a new path.
		visitor_idx := idx
		if i > 0 {
			if len(visitor.Paths) >= visitor.Max {
				continue
			}
			visitor_idx = visitor.Add(idx, depth)
		}

		visitor.AddComponent(visitor_idx, fn.Name)

		if fn.ParentEntryNumber == ROOT_MFT_ID || fn.ParentEntryNumber == 0 {
			continue
		}

		parent, err := ntfs.GetMFTSummary(fn.ParentEntryNumber)
		if err != nil {
			visitor.AddComponent(visitor_idx, err.Error())
			visitor.AddComponent(visitor_idx, "<Err>")
			continue
		}

		if fn.ParentSequenceNumber != parent.Sequence {
			visitor.AddComponent(visitor_idx,
				fmt.Sprintf("<Parent %v-%v need %v>", fn.ParentEntryNumber,
					parent.Sequence, fn.ParentSequenceNumber))
			visitor.AddComponent(visitor_idx, "<Err>")
			continue
		}

		getNames(ntfs, parent, visitor, visitor_idx, depth+1)
	}
}

// ResolveUSNPath resolves the full path of a USN record through its
// parent directory. The record's own MFT entry may already be deleted
// or reused, the parent is more reliable.
func ResolveUSNPath(ntfs *NTFSContext, record *USN_RECORD) []string {
	parent := record.ParentFileReferenceNumber()
	parent_id := parent.MFTId()

	summary, err := ntfs.GetMFTSummary(parent_id)
	if err != nil {
		return []string{fmt.Sprintf("<Err>\\<Parent %v Error %v>\\%v",
			parent_id, err, record.Filename())}
	}

	// Wide references do not carry a usable sequence number.
	if !parent.Wide && summary.Sequence != parent.Sequence() {
		return []string{fmt.Sprintf("<Err>\\<Parent %v-%v need %v>\\%v",
			parent_id, summary.Sequence, parent.Sequence(),
			record.Filename())}
	}

	result := []string{}
	for _, components := range GetHardLinks(ntfs, parent_id, DefaultMaxLinks) {
		components = append(components, record.Filename())
		result = append(result, strings.Join(components, "\\"))
	}
	return result
}
