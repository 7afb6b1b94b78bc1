// Package shell builds the page-side resilience subsystem of one host.
//
// A Context owns the participant document, the navigator, the background
// timer manager, the stream registry and the state controller. Suspend and
// Resume are the only lifecycle entry points; they fan out to every
// component. HandleSignals maps SIGTSTP and SIGCONT onto them for
// headless hosts.
package shell
