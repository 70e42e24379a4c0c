// Package flagsutil configures the common flags every demo command in
// this module accepts, adapted from the teacher's pkg/flags (minus its
// klog/version wiring, which this module has no use for).
package flagsutil

import (
	"flag"

	log "github.com/sirupsen/logrus"
)

// ConfigureAndParse adds the -log-level flag common to every command
// in this module, then parses cmd against args. Call after all other
// flags on cmd have been declared.
func ConfigureAndParse(cmd *flag.FlagSet, args []string) {
	logLevel := cmd.String("log-level", log.InfoLevel.String(),
		"log level, must be one of: panic, fatal, error, warn, info, debug")

	cmd.Parse(args)

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log-level: %s", *logLevel)
	}
	log.SetLevel(level)
}
