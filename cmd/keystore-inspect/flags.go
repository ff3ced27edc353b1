package main

import (
	"flag"
	"time"
)

type options struct {
	target           string
	callID           string
	json             bool
	watch            bool
	interval         time.Duration
	heapProfile      string
	goroutineProfile string
	version          bool
}

func parseFlags() *options {
	opts := &options{}

	flag.StringVar(&opts.target, "target", "http://localhost:6060", "base URL of the target service")
	flag.StringVar(&opts.callID, "call", "", "restrict output to one call ID")
	flag.BoolVar(&opts.json, "json", false, "emit JSON instead of a text table")
	flag.BoolVar(&opts.watch, "watch", false, "poll repeatedly instead of a single snapshot")
	flag.DurationVar(&opts.interval, "interval", 2*time.Second, "poll interval in watch mode")
	flag.StringVar(&opts.heapProfile, "heap-profile", "", "download a heap pprof profile to this path and exit")
	flag.StringVar(&opts.goroutineProfile, "goroutine-profile", "", "download a goroutine pprof profile to this path and exit")
	flag.BoolVar(&opts.version, "version", false, "print the CLI version and exit")
	flag.Parse()

	return opts
}
