package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/CZERTAINLY/dumpsys/internal/dumpsys"
	"github.com/CZERTAINLY/dumpsys/internal/model"
)

// flags holds the parsed command line
type flags struct {
	list       bool
	hardware   bool
	timeout    int
	timeoutSet bool
	skip       []string
	skipSet    bool
	metrics    string
}

// buildOptions merges command line with the configuration file.
//
//	dumpsys                      dump all, config skip list applies
//	dumpsys -l                   list running services
//	dumpsys --hw                 list hardware services
//	dumpsys --skip a b c         dump all but a, b and c
//	dumpsys name [args...]       dump name only, args are forwarded
func buildOptions(f flags, cfg model.Config, args []string) (dumpsys.Options, error) {
	timeout := cfg.TimeoutDuration()
	if f.timeoutSet {
		if f.timeout <= 0 {
			return dumpsys.Options{}, fmt.Errorf("invalid timeout %d: must be a positive number of seconds", f.timeout)
		}
		timeout = time.Duration(f.timeout) * time.Second
	}

	opts := dumpsys.Options{Timeout: timeout}
	switch {
	case f.hardware:
		opts.Mode = dumpsys.ModeListHardware
	case f.list:
		opts.Mode = dumpsys.ModeList
	case f.skipSet:
		opts.Mode = dumpsys.ModeDumpAll
		opts.Skip = slices.Concat(cfg.Skip, f.skip, args)
	case len(args) > 0:
		opts.Mode = dumpsys.ModeSingle
		opts.Target = args[0]
		opts.Args = slices.Clone(args[1:])
	default:
		opts.Mode = dumpsys.ModeDumpAll
		opts.Skip = slices.Clone(cfg.Skip)
	}
	return opts, nil
}

// metricsPath returns --metrics, or the path from configuration
func metricsPath(f flags, cfg model.Config) string {
	if f.metrics != "" {
		return f.metrics
	}
	return cfg.Metrics
}
