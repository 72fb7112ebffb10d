// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary execution lifecycle, decoupled
// from any specific entrypoint like a CLI or server.
//
// An App owns one module runner per configured environment. Run imports the
// entries of every environment, prints their exports and, in watch mode,
// keeps the runners alive behind their hot update transports until the
// context is cancelled.
package app
