// Package cli parses the waveview command line.
package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings parsed from the command line.
type Config struct {
	AudioPath       string        // path to the audio file to open (optional)
	Timeout         time.Duration // automatic exit after this long (0 is unlimited)
	LogLevel        string        // log level (debug, info, warn, error)
	Headless        bool          // run without a window
	ShowHelp        bool          // help flag
	CacheBudgetMB   int           // waveform segment cache budget in MiB
	PollInterval    time.Duration // progress monitor poll interval
	RenderTimeout   time.Duration // painter wait budget before a soft-fail frame
	PrefetchSeconds float64       // how far beyond the viewport to prefetch
}

// ParseArgs parses args (without the program name) into a Config.
// Environment variables HEADLESS, TIMEOUT and LOG_LEVEL act as fallbacks
// when the corresponding flag is absent.
func ParseArgs(args []string) (*Config, error) {
	// Reorder so flags come first and positional arguments last.
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("waveview", flag.ContinueOnError)

	config := &Config{}

	var timeoutSec int
	var pollMs, renderTimeoutMs int
	fs.IntVar(&timeoutSec, "timeout", 0, "exit after this many seconds (0 is unlimited)")
	fs.IntVar(&timeoutSec, "t", 0, "exit after this many seconds (shorthand)")
	fs.StringVar(&config.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&config.LogLevel, "l", "info", "log level (shorthand)")
	fs.BoolVar(&config.Headless, "headless", false, "run without a window")
	fs.BoolVar(&config.ShowHelp, "help", false, "show help")
	fs.BoolVar(&config.ShowHelp, "h", false, "show help (shorthand)")
	fs.IntVar(&config.CacheBudgetMB, "cache-budget-mb", 128, "waveform cache budget in MiB")
	fs.IntVar(&pollMs, "poll-interval-ms", 15, "progress poll interval in milliseconds")
	fs.IntVar(&renderTimeoutMs, "render-timeout-ms", 750, "frame wait budget in milliseconds")
	fs.Float64Var(&config.PrefetchSeconds, "prefetch-seconds", 5, "seconds of waveform to prefetch beyond the viewport")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// Environment fallbacks; flags win.
	if !config.Headless {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}
	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}
	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	if config.CacheBudgetMB <= 0 {
		return nil, fmt.Errorf("cache budget must be positive, got %d", config.CacheBudgetMB)
	}
	if pollMs <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %d", pollMs)
	}
	if renderTimeoutMs <= 0 {
		return nil, fmt.Errorf("render timeout must be positive, got %d", renderTimeoutMs)
	}
	if config.PrefetchSeconds < 0 {
		return nil, fmt.Errorf("prefetch seconds must be non-negative, got %v", config.PrefetchSeconds)
	}
	config.PollInterval = time.Duration(pollMs) * time.Millisecond
	config.RenderTimeout = time.Duration(renderTimeoutMs) * time.Millisecond

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	if fs.NArg() > 0 {
		config.AudioPath = fs.Arg(0)
	}

	return config, nil
}

// reorderArgs moves flags before positional arguments so the flag package
// does not stop at the first positional.
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	boolFlags := map[string]bool{
		"-h": true, "--help": true,
		"-headless": true, "--headless": true,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			// A flag that takes a value consumes the next argument.
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				if !boolFlags[arg] && !strings.Contains(arg, "=") {
					i++
					flags = append(flags, args[i])
				}
			}
		} else {
			positional = append(positional, arg)
		}
	}

	return append(flags, positional...)
}

// PrintHelp writes the usage message to stdout.
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `waveview - audio waveform viewer

Usage:
  waveview [options] [audio-file]

Arguments:
  audio-file    path to a WAV file to open at startup (optional)

Options:
  -t, --timeout <seconds>       exit after this many seconds (default: unlimited)
  -l, --log-level <level>       log level: debug, info, warn, error (default: info)
  --headless                    run without a window
  --cache-budget-mb <mib>       waveform cache budget in MiB (default: 128)
  --poll-interval-ms <ms>       progress poll interval (default: 15)
  --render-timeout-ms <ms>      frame wait budget (default: 750)
  --prefetch-seconds <seconds>  waveform prefetch distance (default: 5)
  -h, --help                    show this help

Environment Variables:
  HEADLESS=1                    enable headless mode
  TIMEOUT=<seconds>             automatic exit timeout
  LOG_LEVEL=<level>             log level

Examples:
  waveview recording.wav            open a file
  waveview --headless -t 10 a.wav   render without a window for 10 seconds
  waveview --log-level debug a.wav  enable debug logging
`)
}
