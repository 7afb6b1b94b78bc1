// Package buildinfo exposes build-time version information.
//
// Values are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/shellkeep-go/internal/infra/buildinfo.Version=v1.0.0"
package buildinfo
