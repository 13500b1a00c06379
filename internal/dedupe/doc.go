// Package dedupe provides a fixed-capacity window of recently seen event
// identifiers, used to suppress duplicate delivery of realtime events.
package dedupe
