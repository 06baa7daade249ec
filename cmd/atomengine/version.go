// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import "github.com/22388o/atom-engine/internal/version"

const (
	// AppName is the application name.
	AppName string = "atomengine"
)

var (
	// appVersion is the application version per the semantic versioning
	// 2.0.0 spec (https://semver.org/). It is a variable so it can be
	// overridden at build time with -ldflags "-X main.appVersion=...".
	appVersion = "0.1.0+release.local"
)

func init() {
	appVersion = version.Parse(appVersion)
}
