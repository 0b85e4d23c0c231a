// Package flume provides an in-process reactive composition engine.
//
// The core code is in package 'core': a selector-keyed event bus
// (Reactor) and a Composable, which represents a deferred or streaming
// value with chainable map/filter/reduce stages.
//
// Selectors live in 'selector', dispatchers in 'dispatch', and
// process-wide configuration in 'env'.  Packages 'jsfn' and 'timers'
// are optional: Javascript-defined pipeline functions and scheduled
// event sources.
package flume
