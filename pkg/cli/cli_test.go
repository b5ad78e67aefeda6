package cli

import (
	"testing"
	"time"
)

func TestParseArgsDefaults(t *testing.T) {
	config, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if config.AudioPath != "" {
		t.Errorf("AudioPath = %q, want empty", config.AudioPath)
	}
	if config.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", config.LogLevel)
	}
	if config.Headless {
		t.Error("Headless = true, want false")
	}
	if config.CacheBudgetMB != 128 {
		t.Errorf("CacheBudgetMB = %d, want 128", config.CacheBudgetMB)
	}
	if config.PollInterval != 15*time.Millisecond {
		t.Errorf("PollInterval = %v, want 15ms", config.PollInterval)
	}
	if config.RenderTimeout != 750*time.Millisecond {
		t.Errorf("RenderTimeout = %v, want 750ms", config.RenderTimeout)
	}
	if config.PrefetchSeconds != 5 {
		t.Errorf("PrefetchSeconds = %v, want 5", config.PrefetchSeconds)
	}
}

func TestParseArgsFlags(t *testing.T) {
	config, err := ParseArgs([]string{
		"-t", "10",
		"--log-level", "debug",
		"--headless",
		"--cache-budget-mb", "64",
		"--poll-interval-ms", "30",
		"--render-timeout-ms", "500",
		"--prefetch-seconds", "2.5",
		"recording.wav",
	})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if config.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", config.Timeout)
	}
	if config.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", config.LogLevel)
	}
	if !config.Headless {
		t.Error("Headless = false, want true")
	}
	if config.CacheBudgetMB != 64 {
		t.Errorf("CacheBudgetMB = %d, want 64", config.CacheBudgetMB)
	}
	if config.PollInterval != 30*time.Millisecond {
		t.Errorf("PollInterval = %v, want 30ms", config.PollInterval)
	}
	if config.RenderTimeout != 500*time.Millisecond {
		t.Errorf("RenderTimeout = %v, want 500ms", config.RenderTimeout)
	}
	if config.PrefetchSeconds != 2.5 {
		t.Errorf("PrefetchSeconds = %v, want 2.5", config.PrefetchSeconds)
	}
	if config.AudioPath != "recording.wav" {
		t.Errorf("AudioPath = %q, want recording.wav", config.AudioPath)
	}
}

func TestParseArgsPositionalBeforeFlags(t *testing.T) {
	config, err := ParseArgs([]string{"recording.wav", "--headless", "-l", "warn"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if config.AudioPath != "recording.wav" {
		t.Errorf("AudioPath = %q, want recording.wav", config.AudioPath)
	}
	if !config.Headless {
		t.Error("Headless = false, want true")
	}
	if config.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", config.LogLevel)
	}
}

func TestParseArgsEnvFallbacks(t *testing.T) {
	t.Setenv("HEADLESS", "1")
	t.Setenv("TIMEOUT", "7")
	t.Setenv("LOG_LEVEL", "ERROR")

	config, err := ParseArgs([]string{"recording.wav"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !config.Headless {
		t.Error("HEADLESS env ignored")
	}
	if config.Timeout != 7*time.Second {
		t.Errorf("Timeout = %v, want 7s", config.Timeout)
	}
	if config.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error", config.LogLevel)
	}
}

func TestParseArgsFlagsWinOverEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	config, err := ParseArgs([]string{"--log-level", "debug"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if config.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", config.LogLevel)
	}
}

func TestParseArgsRejectsInvalid(t *testing.T) {
	cases := [][]string{
		{"--log-level", "verbose"},
		{"--cache-budget-mb", "0"},
		{"--poll-interval-ms", "0"},
		{"--render-timeout-ms", "-1"},
		{"--prefetch-seconds", "-2"},
	}
	for _, args := range cases {
		if _, err := ParseArgs(args); err == nil {
			t.Errorf("ParseArgs(%v) accepted invalid input", args)
		}
	}
}
