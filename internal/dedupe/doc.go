// Package dedupe remembers recently seen event ids so that redelivered sync
// events are handled once.
package dedupe
