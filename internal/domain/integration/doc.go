// Package integration models outbound webhook subscriptions.
//
// An Integration receives a JSON POST for every business event it subscribes
// to. Delivery is best-effort: a failed POST is logged and dropped.
package integration
