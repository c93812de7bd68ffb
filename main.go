package main

import "github.com/Orlik-B/NVR-surveillance/cmd/overwatch"

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	overwatch.Execute(overwatch.BuildInfo{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	})
}
