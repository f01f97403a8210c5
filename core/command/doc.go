// Package command defines the commands the control plane can send to charge
// boxes and the typed responses they answer with.
//
// Every Kind has exactly one request type implementing Command and one
// response type implementing the sealed Response interface. Raw device
// answers are turned into typed values with DecodeResponse, which switches
// over all kinds, so callers never need to guess the concrete type.
package command
