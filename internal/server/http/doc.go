// Package httpserver exposes the payment stream lifecycle over a JSON HTTP
// API. Callers authenticate with a bearer token whose subject is their
// account; settlement payouts are handed to a Transferer and are not awaited.
package httpserver
