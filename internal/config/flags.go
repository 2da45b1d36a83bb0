package config

import (
	"flag"
	"os"
	"time"

	"github.com/mzhadan/syncbox/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address of the backend HTTP endpoint
//	-t string   bearer token for API calls
//	-d string   data directory for the local database and staged blobs
//	-s int      sync timer interval in seconds
//	-i int      online check interval in seconds
//	-w int      upload worker count
//	-l string   log file path (empty logs to stderr)
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-t", "-d", "-s", "-i", "-w", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.EndpointAddr, "a", cfg.EndpointAddr, "address of the backend HTTP endpoint")
	fs.StringVar(&cfg.AuthToken, "t", cfg.AuthToken, "bearer token for API calls")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Seconds()), "sync timer interval (in seconds)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.IntVar(&cfg.Workers, "w", cfg.Workers, "upload worker count")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file path")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
