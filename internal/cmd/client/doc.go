// Package client provides the `nostrhub-cli` debug client: a handful of
// cobra subcommands wrapping Client/Conn to publish an event to a relay's
// websocket endpoint, or to subscribe to a filter and print the stored
// matches up to EOSE, from a terminal.
//
// Usage
//
//	nostrhub-cli req --url ws://127.0.0.1:7777/ --filter '{"kinds":[1],"limit":10}'
//	nostrhub-cli publish --url ws://127.0.0.1:7777/ --event ./event.json
package client
