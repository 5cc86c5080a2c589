// Package transport moves files in and out of a run and fans progress out
// to observers.
//
// Local fetches source and target content from filesystem paths, file://
// URLs, or http(s) URLs and delivers finished outputs into an outbox
// directory. ThrottledSink rate-limits non-terminal progress events before
// they reach a slower consumer, and Hub keeps the most recent events and
// summary per owner for the control API.
package transport
