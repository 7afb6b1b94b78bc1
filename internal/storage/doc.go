// Package storage provides the embedded key-value engine used by shellkeep.
//
// The engine is a thin layer over Badger v3 exposing whole-record
// get/set/delete and prefix scans. Two independent writers may share one
// store (the page-side state controller and the background agent); every
// write replaces the full value, so the last writer wins.
package storage
