// Package main provides the dqconnector binary, which synchronizes data
// quality rules and profiles from the quality engine into the governance
// catalogs.
package main

import (
	"flag"
	"os"

	"github.com/golang/glog"
)

var version = "dev"

func main() {
	// glog reports only the final command error; everything else goes through zap.
	_ = flag.Set("logtostderr", "true")

	if err := newRootCmd().Execute(); err != nil {
		glog.Errorf("dqconnector: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}
