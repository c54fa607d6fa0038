package main

import "time"

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags Flag structs to decouple cobra from logic for testing.
type RunFlags struct {
	Name     string
	Cmd      string
	WorkDir  string
	Interval time.Duration
	StopWait time.Duration
	LogPath  string
	LogDir   string
	EnvKVs   []string
	EnvFiles []string
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	LogFile    string
}

type StatusFlags struct {
	Name string
	JSON bool
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type StartFlags struct {
	Name string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type StopFlags struct {
	Name string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type RunsFlags struct {
	Name  string
	Limit int
	JSON  bool
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type TemplateCreateFlags struct {
	Type   string
	Name   string
	Output string
	Format string
	Force  bool
}
