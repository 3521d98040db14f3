// Package tracker keeps the registry of bean proxies known to one model.
//
// The tracker subscribes to every registered proxy and maintains the
// modified, transient, executing and validation-dirty sets incrementally, so
// the aggregate questions a toolbar asks on every repaint ("anything to
// save?", "anything running?") are answered without scanning the model.
package tracker
