package buildinfo

import (
	"fmt"
	"log"
)

// Populated via -ldflags at release build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Summary identifies one running binary and its build provenance.
type Summary struct {
	Binary  string `json:"binary"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get returns the build summary for the named binary.
func Get(binary string) Summary {
	return Summary{Binary: binary, Version: Version, Commit: Commit, Date: Date}
}

func (s Summary) String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", s.Binary, s.Version, s.Commit, s.Date)
}

// Log writes the build summary at process start.
func Log(binary string) {
	log.Print(Get(binary).String())
}
