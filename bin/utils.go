package main

import (
	"encoding/json"
	"fmt"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-usn/parser"
)

func getOptions() parser.Options {
	options := parser.GetDefaultOptions()
	if *config_flag != "" {
		var err error
		options, err = parser.LoadOptions(*config_flag)
		kingpin.FatalIfError(err, "Can not load config")
	}

	if *record_size_flag > 0 {
		options.RecordSize = *record_size_flag
	}
	return options
}

// getSession opens collected files when given, otherwise the live
// volume. With --record the session is recorded, or replayed when
// the volume can not be opened.
func getSession(options parser.Options) parser.Session {
	var session parser.Session

	if *mft_flag != "" || *usn_flag != "" {
		image, err := parser.OpenImageFiles(*mft_flag, *usn_flag, options)
		kingpin.FatalIfError(err, "Can not open image")
		session = image

	} else {
		volume, err := parser.OpenVolume(*volume_flag, options)
		if err != nil && !(*record_directory != "" &&
			errors.Is(err, parser.ErrNotSupported)) {
			kingpin.FatalIfError(err, "Can not open volume")
		}
		if err == nil {
			session = volume
		}
	}

	if *record_directory == "" {
		return session
	}

	parser.DebugPrint("Will record to dir %v\n", *record_directory)
	recorder, err := parser.NewRecorder(*record_directory, session)
	kingpin.FatalIfError(err, "Can not create recorder")
	return recorder
}

func getContext() *parser.NTFSContext {
	options := getOptions()
	ntfs_ctx, err := parser.GetNTFSContext(getSession(options), options)
	kingpin.FatalIfError(err, "Can not open session")
	return ntfs_ctx
}

func printJSON(row *ordereddict.Dict) {
	serialized, err := json.MarshalIndent(row, " ", " ")
	kingpin.FatalIfError(err, "Marshal")

	fmt.Println(string(serialized))
}
