// Package page models the interactive surface of one application page.
//
// UI components declare themselves in a Document as participants: scroll
// containers, overlays and form fields, each attached to a Node in the
// component tree. Collectors read a best-effort snapshot of participant
// state and the Apply functions write a snapshot back. Stable selectors
// are derived from a participant's Node so a value captured before a
// suspension finds the same participant after it.
//
// Collectors never panic past their boundary. A participant whose methods
// panic contributes nothing.
package page
