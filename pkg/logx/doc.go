// Package logx is tickd's logging layer over zerolog.
//
// A Service owns the sinks (console, rotated JSON file, rate-limited journal)
// and can be reconfigured at runtime with Apply. Components hold a Logger,
// which keeps following the Service after a reload.
package logx
