// Package infra holds the adapters around the core: the OCPP-J websocket
// transport, the MQTT publisher, metrics sinks, Sentry, logging and the
// sqlite transaction store. Core packages never import infra.
package infra
