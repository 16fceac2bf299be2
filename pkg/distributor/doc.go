// Package distributor implements push-delivery registration: external
// apps hand over a connector token and receive an HTTP endpoint backed
// by a dedicated, auto-created subscription.
//
// Registration and unregistration share a single critical section so
// the look-up-then-create sequence is atomic per process. Endpoints are
// stable across re-registration; a token stays bound to the app that
// first registered it.
package distributor
