package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-usn/parser"
)

var (
	volume_command = app.Command(
		"volume", "Show the NTFS volume data.")

	volume_command_json = volume_command.Flag(
		"json", "Emit the volume data as JSON").Bool()

	stats_command = app.Command(
		"stats", "Walk the journal and report parser statistics.")
)

func doVolume() {
	ntfs_ctx := getContext()
	defer ntfs_ctx.Close()

	volume_data, err := ntfs_ctx.GetVolumeData()
	kingpin.FatalIfError(err, "Can not get volume data")

	if *volume_command_json {
		printJSON(parser.ModelVolumeData(volume_data))
		return
	}

	file_count, _ := volume_data.FileCount()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	defer table.Render()

	cluster_size := uint64(volume_data.BytesPerCluster)
	table.Append([]string{"Serial", fmt.Sprintf("%#x", volume_data.VolumeSerialNumber)})
	table.Append([]string{"Version", fmt.Sprintf("%v.%v",
		volume_data.NtfsMajorVersion, volume_data.NtfsMinorVersion)})
	table.Append([]string{"Size", humanize.IBytes(
		uint64(volume_data.TotalClusters) * cluster_size)})
	table.Append([]string{"Free", humanize.IBytes(
		uint64(volume_data.FreeClusters) * cluster_size)})
	table.Append([]string{"Cluster size", humanize.IBytes(cluster_size)})
	table.Append([]string{"Record size", humanize.IBytes(
		uint64(volume_data.BytesPerFileRecordSegment))})
	table.Append([]string{"MFT size", humanize.IBytes(
		uint64(volume_data.MftValidDataLength))})
	table.Append([]string{"MFT records", humanize.Comma(int64(file_count))})
}

func doStats() {
	ntfs_ctx := getContext()
	defer ntfs_ctx.Close()

	err := ntfs_ctx.EnumerateRecords(func(record *parser.USN_RECORD) error {
		return nil
	})
	kingpin.FatalIfError(err, "Can not walk journal")

	printJSON(parser.STATS.Dict())
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case volume_command.FullCommand():
			doVolume()
		case stats_command.FullCommand():
			doStats()
		default:
			return false
		}
		return true
	})
}
