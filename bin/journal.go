package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-usn/parser"
)

var (
	journal_command = app.Command(
		"journal", "Inspect and manage the USN change journal.")

	journal_query_command = journal_command.Command(
		"query", "Show the journal descriptor.")

	journal_query_json = journal_query_command.Flag(
		"json", "Emit the descriptor as JSON").Bool()

	journal_dump_command = journal_command.Command(
		"dump", "Dump journal records as JSON.")

	journal_dump_out = journal_dump_command.Flag(
		"out", "Write a {\"Records\": [...]} document to this file").
		String()

	journal_dump_start_usn = journal_dump_command.Flag(
		"start_usn", "Start from this usn (default the first usn)").
		Int64()

	journal_dump_watch = journal_dump_command.Flag(
		"watch", "Watch the journal for new records").Bool()

	journal_dump_resolve = journal_dump_command.Flag(
		"resolve", "Resolve the full path of each record").Bool()

	journal_create_command = journal_command.Command(
		"create", "Create the journal (or change its size).")

	journal_create_max_size = journal_create_command.Flag(
		"max_size", "Maximum size of the journal").
		Default("33554432").Uint64()

	journal_create_delta = journal_create_command.Flag(
		"delta", "Allocation delta of the journal").
		Default("4194304").Uint64()

	journal_delete_command = journal_command.Command(
		"delete", "Delete the journal.")

	journal_reset_command = journal_command.Command(
		"reset", "Delete the journal and create it with the same size.")
)

func doJournalQuery() {
	ntfs_ctx := getContext()
	defer ntfs_ctx.Close()

	descriptor, err := ntfs_ctx.QueryJournal()
	kingpin.FatalIfError(err, "Can not query journal")

	if *journal_query_json {
		printJSON(parser.ModelJournalDescriptor(descriptor))
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.SetCaption(true, "Change journal")
	defer table.Render()

	table.Append([]string{"JournalID", fmt.Sprintf("%#x", descriptor.JournalID)})
	table.Append([]string{"FirstUsn", fmt.Sprintf("%#x", descriptor.FirstUsn)})
	table.Append([]string{"NextUsn", fmt.Sprintf("%#x", descriptor.NextUsn)})
	table.Append([]string{"LowestValidUsn", fmt.Sprintf("%#x", descriptor.LowestValidUsn)})
	table.Append([]string{"MaxUsn", fmt.Sprintf("%#x", descriptor.MaxUsn)})
	table.Append([]string{"MaxSize", humanize.IBytes(descriptor.MaxSize)})
	table.Append([]string{"AllocationDelta", humanize.IBytes(descriptor.AllocationDelta)})
	table.Append([]string{"Versions", fmt.Sprintf("%v-%v",
		descriptor.MinSupportedMajorVersion, descriptor.MaxSupportedMajorVersion)})
}

func getRowWriter() rowWriter {
	if *journal_dump_out == "" {
		return &jsonLineWriter{writer: os.Stdout}
	}

	output, err := openRecordsFile(*journal_dump_out)
	kingpin.FatalIfError(err, "Can not open output")
	return output
}

func doJournalDump() {
	ntfs_ctx := getContext()
	defer ntfs_ctx.Close()

	output := getRowWriter()

	if *journal_dump_watch {
		for record := range parser.WatchUSN(context.Background(), ntfs_ctx,
			*journal_dump_start_usn, ntfs_ctx.Options().WatchPeriod) {
			err := output.Write(recordRow(ntfs_ctx, record, *journal_dump_resolve))
			kingpin.FatalIfError(err, "Can not write record")
		}
		kingpin.FatalIfError(output.Close(), "Can not close output")
		return
	}

	count, err := dumpRecords(ntfs_ctx, *journal_dump_start_usn,
		*journal_dump_resolve, output)

	// Close the document even on failure so the records written so
	// far are still readable.
	close_err := output.Close()
	kingpin.FatalIfError(err, "Can not dump journal after %v records", count)
	kingpin.FatalIfError(close_err, "Can not close output")

	parser.DebugPrint("Emitted %v records", humanize.Comma(int64(count)))
}

func doJournalCreate() {
	ntfs_ctx := getContext()
	defer ntfs_ctx.Close()

	err := ntfs_ctx.CreateJournal(*journal_create_max_size, *journal_create_delta)
	kingpin.FatalIfError(err, "Can not create journal")
}

func doJournalDelete() {
	ntfs_ctx := getContext()
	defer ntfs_ctx.Close()

	descriptor, err := ntfs_ctx.QueryJournal()
	kingpin.FatalIfError(err, "Can not query journal")

	err = ntfs_ctx.DeleteJournal(descriptor.JournalID)
	kingpin.FatalIfError(err, "Can not delete journal")
}

func doJournalReset() {
	ntfs_ctx := getContext()
	defer ntfs_ctx.Close()

	old, err := ntfs_ctx.ResetJournal()
	if errors.Is(err, parser.ErrPartialJournalReset) {
		fmt.Fprintf(os.Stderr,
			"WARNING: the volume has NO change journal. Recreate it with:\n"+
				"  gousn journal create --max_size %v --delta %v\n",
			old.MaxSize, old.AllocationDelta)
	}
	kingpin.FatalIfError(err, "Can not reset journal")

	descriptor, err := ntfs_ctx.QueryJournal()
	kingpin.FatalIfError(err, "Can not query journal")

	fmt.Printf("Journal %#x replaced by %#x (%v)\n", old.JournalID,
		descriptor.JournalID, humanize.IBytes(descriptor.MaxSize))
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case journal_query_command.FullCommand():
			doJournalQuery()
		case journal_dump_command.FullCommand():
			doJournalDump()
		case journal_create_command.FullCommand():
			doJournalCreate()
		case journal_delete_command.FullCommand():
			doJournalDelete()
		case journal_reset_command.FullCommand():
			doJournalReset()
		default:
			return false
		}
		return true
	})
}
