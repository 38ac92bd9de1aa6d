package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

const flags = log.Ldate | log.Ltime | log.Lshortfile

var (
	Info  = log.New(os.Stdout, "INFO: ", flags)
	Error = log.New(os.Stderr, "ERROR: ", flags)
)

// Init points the loggers at stdout and logs/odbcref.log under logDir
func Init(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	logFile, err := os.OpenFile(filepath.Join(logDir, "odbcref.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	multiWriter := io.MultiWriter(os.Stdout, logFile)

	Info = log.New(multiWriter, "INFO: ", flags)
	Error = log.New(multiWriter, "ERROR: ", flags)

	return nil
}

// Discard silences both loggers. Used by commands whose stdout is their output.
func Discard() {
	Info.SetOutput(io.Discard)
	Error.SetOutput(io.Discard)
}
