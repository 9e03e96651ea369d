// Package server hosts the Fiber HTTP service, request middleware chain, and
// source registry glue that wires connector assembly into route handlers.
// It bootstraps Fiber, attaches logging and request-ID middlewares, builds the
// SourceRegistry from config (base connector plus optional cache decorator),
// and exposes router constructors that other packages (cmd entrypoint, routes)
// can reuse. Keep exports narrow and accept explicit dependencies.
package server
