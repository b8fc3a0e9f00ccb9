package parser

import (
	"fmt"

	"github.com/Velocidex/ordereddict"
)

// This file defines rows for serializing decoded structures. Field
// order is preserved in the JSON output.

func ModelUSNRecord(record *USN_RECORD) *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("Usn", record.Usn()).
		Set("Version", fmt.Sprintf("%d.%d",
			record.MajorVersion(), record.MinorVersion())).
		Set("FileReferenceNumber", record.FileReferenceNumber().String()).
		Set("ParentFileReferenceNumber",
			record.ParentFileReferenceNumber().String())

	if record.V2 != nil {
		result.Set("MFTId", record.FileReferenceNumber().MFTId()).
			Set("Sequence", record.FileReferenceNumber().Sequence()).
			Set("ParentMFTId", record.ParentFileReferenceNumber().MFTId()).
			Set("ParentSequence", record.ParentFileReferenceNumber().Sequence())
	}

	if record.V4 == nil {
		result.Set("TimeStamp", record.TimeStamp().Time)
	}

	result.Set("Reason", record.Reason().Values()).
		Set("SourceInfo", record.SourceInfo().Values())

	if record.V4 != nil {
		extents := []*ordereddict.Dict{}
		for _, extent := range record.Extents() {
			extents = append(extents, ordereddict.NewDict().
				Set("Offset", extent.Offset).
				Set("Length", extent.Length))
		}
		return result.Set("RemainingExtents", record.V4.RemainingExtents()).
			Set("Extents", extents)
	}

	return result.Set("SecurityId", record.SecurityId()).
		Set("FileAttributes", record.FileAttributes().Values()).
		Set("Filename", record.Filename()).
		Set("FilenameTruncated", record.FilenameTruncated())
}

func ModelJournalDescriptor(descriptor *JournalDescriptor) *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("JournalID", fmt.Sprintf("%#x", descriptor.JournalID)).
		Set("FirstUsn", descriptor.FirstUsn).
		Set("NextUsn", descriptor.NextUsn).
		Set("LowestValidUsn", descriptor.LowestValidUsn).
		Set("MaxUsn", descriptor.MaxUsn).
		Set("MaxSize", descriptor.MaxSize).
		Set("AllocationDelta", descriptor.AllocationDelta).
		Set("MinSupportedMajorVersion", descriptor.MinSupportedMajorVersion).
		Set("MaxSupportedMajorVersion", descriptor.MaxSupportedMajorVersion)
}

func ModelVolumeData(volume_data *VolumeData) *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("VolumeSerialNumber", fmt.Sprintf("%#x", volume_data.VolumeSerialNumber)).
		Set("NtfsVersion", fmt.Sprintf("%d.%d",
			volume_data.NtfsMajorVersion, volume_data.NtfsMinorVersion)).
		Set("NumberSectors", volume_data.NumberSectors).
		Set("TotalClusters", volume_data.TotalClusters).
		Set("FreeClusters", volume_data.FreeClusters).
		Set("BytesPerSector", volume_data.BytesPerSector).
		Set("BytesPerCluster", volume_data.BytesPerCluster).
		Set("BytesPerFileRecordSegment", volume_data.BytesPerFileRecordSegment).
		Set("MftValidDataLength", volume_data.MftValidDataLength).
		Set("MftStartLcn", volume_data.MftStartLcn)

	file_count, err := volume_data.FileCount()
	if err == nil {
		result.Set("FileCount", file_count)
	}
	return result
}

func ModelAttribute(attr *NTFS_ATTRIBUTE) *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("Type", attr.Type().Name).
		Set("TypeId", attr.Type().Value).
		Set("Id", attr.Attribute_id()).
		Set("Name", attr.Name()).
		Set("Length", attr.Length()).
		Set("Resident", attr.IsResident()).
		Set("Flags", attr.Flags().Values()).
		Set("Size", attr.DataSize())

	switch attr.Type().Value {
	case ATTR_TYPE_STANDARD_INFORMATION:
		si, err := ParseStandardInformation(attr)
		if err == nil {
			result.Set("Created", si.Create_time().Time).
				Set("Modified", si.File_altered_time().Time).
				Set("MFTModified", si.Mft_altered_time().Time).
				Set("Accessed", si.File_accessed_time().Time).
				Set("FileAttributes", si.Flags().Values())
		}

	case ATTR_TYPE_FILE_NAME:
		fn, err := ParseFileName(attr)
		if err == nil {
			result.Set("FileName", fn.Name()).
				Set("NameType", fn.NameType().Name).
				Set("ParentMFTId", fn.MftReference()).
				Set("ParentSequence", fn.Seq_num()).
				Set("Created", fn.Created().Time)
		}
	}

	return result
}

// ModelMFTRecord describes the record header and its attributes.
func ModelMFTRecord(record *MFT_FILE_RECORD) (*ordereddict.Dict, error) {
	attributes := []*ordereddict.Dict{}
	err := record.WalkAttributes(func(attr *NTFS_ATTRIBUTE) error {
		attributes = append(attributes, ModelAttribute(attr))
		return nil
	})

	result := ordereddict.NewDict().
		Set("RecordNumber", record.Record_number()).
		Set("Sequence", record.Sequence_value()).
		Set("LinkCount", record.Link_count()).
		Set("Flags", record.Flags().Values()).
		Set("LogFileSequenceNumber", record.Logfile_sequence_number()).
		Set("BytesInUse", record.Mft_entry_size()).
		Set("BytesAllocated", record.Mft_entry_allocated()).
		Set("BaseRecordReference", record.Base_record_reference()).
		Set("Attributes", attributes)

	return result, err
}
