package main

import (
	"reflect"
	"testing"
)

func TestStripDaemonArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			"separated forms",
			[]string{"serve", "--daemonize", "--logfile", "/tmp/r.log", "--config", "c.toml"},
			[]string{"serve", "--config", "c.toml"},
		},
		{
			"equals forms",
			[]string{"serve", "--daemonize=true", "--logfile=/tmp/r.log", "--config=c.toml"},
			[]string{"serve", "--config=c.toml"},
		},
		{
			"nothing to strip",
			[]string{"serve", "--config", "c.toml"},
			[]string{"serve", "--config", "c.toml"},
		},
		{
			"empty argv",
			nil,
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripDaemonArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("stripDaemonArgs(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
