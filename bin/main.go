package main

import (
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-usn/parser"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("gousn",
		"A tool for inspecting the NTFS change journal.")

	volume_flag = app.Flag(
		"volume", "The volume to open (e.g. \\\\.\\C:)").
		Default(`\\.\C:`).String()

	mft_flag = app.Flag(
		"mft", "A collected $MFT file to use instead of a volume").
		String()

	usn_flag = app.Flag(
		"usn", "A collected $UsnJrnl:$J file to use instead of a volume").
		String()

	record_size_flag = app.Flag(
		"record_size", "MFT record size of a collected $MFT").
		Int64()

	record_directory = app.Flag(
		"record", "Path to read/write recorded data").
		Default("").String()

	config_flag = app.Flag(
		"config", "A YAML file with parser options").
		String()

	verbose_flag = app.Flag(
		"verbose", "Show verbose information").Bool()

	command_handlers []CommandHandler
)

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *verbose_flag {
		parser.SetDebug()
	}

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}
}
