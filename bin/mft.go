package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-usn/parser"
)

var (
	mft_command = app.Command(
		"mft", "Inspect MFT records.")

	mft_record_command = mft_command.Command(
		"record", "Show an MFT record and its attributes.")

	mft_command_arg = mft_record_command.Arg(
		"mft_id", "The MFT entry to show",
	).Required().Uint64()

	mft_command_json = mft_record_command.Flag(
		"json", "Emit the record as JSON").Bool()
)

func doMFT() {
	ntfs_ctx := getContext()
	defer ntfs_ctx.Close()

	mft_record, err := ntfs_ctx.GetMFTRecord(*mft_command_arg)
	kingpin.FatalIfError(err, "Can not open MFT entry")

	if *mft_command_json {
		row, err := parser.ModelMFTRecord(mft_record.MFT_FILE_RECORD)
		kingpin.FatalIfError(err, "Can not walk attributes")

		row.Set("FullPath", parser.GetHardLinks(
			ntfs_ctx, *mft_command_arg, parser.DefaultMaxLinks))
		printJSON(row)
		return
	}

	if *verbose_flag {
		fmt.Println(mft_record.DebugString())
	}

	links := []string{}
	for _, components := range parser.GetHardLinks(
		ntfs_ctx, *mft_command_arg, parser.DefaultMaxLinks) {
		links = append(links, strings.Join(components, "\\"))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"Id",
		"Type",
		"Name",
		"Resident",
		"Size",
	})
	table.SetCaption(true, fmt.Sprintf("MFT %v (%v) %v",
		mft_record.FileReferenceNumber.MFTId(),
		strings.Join(mft_record.Flags().Values(), ","),
		strings.Join(links, ", ")))
	defer table.Render()

	err = mft_record.WalkAttributes(func(attr *parser.NTFS_ATTRIBUTE) error {
		name := attr.Name()
		if attr.Type().Value == parser.ATTR_TYPE_FILE_NAME {
			fn, err := parser.ParseFileName(attr)
			if err == nil {
				name = fn.Name()
			}
		}

		table.Append([]string{
			fmt.Sprintf("%v", attr.Attribute_id()),
			attr.Type().Name,
			name,
			fmt.Sprintf("%v", attr.IsResident()),
			humanize.Bytes(uint64(attr.DataSize())),
		})
		return nil
	})
	kingpin.FatalIfError(err, "Can not walk attributes")
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case mft_record_command.FullCommand():
			doMFT()
		default:
			return false
		}
		return true
	})
}
