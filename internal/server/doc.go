// Package server runs the receive side of linkollector.
//
// A Loop answers requests on a reply socket until its stop endpoint fires.
// A Worker runs a Loop on its own goroutine; the Service owns the worker,
// turns process interruptions into a shutdown request and reports the
// messages the worker forwards.
package server
