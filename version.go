package lrthrome

// Build metadata, set via -ldflags at release build time and left at
// their zero value in development builds, following
// cmd/routedns/main.go's printVersion()/BuildNumber convention.
var (
	BuildNumber  string
	BuildTime    string
	BuildVersion string
)
