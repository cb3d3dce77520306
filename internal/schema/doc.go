// Package schema validates JSON payloads against JSON Schemas.
//
// Validators are built from an explicit schema, from a simple type map, or
// inferred from a Go type. The typed request helpers use them to reject
// malformed inbound payloads before application code sees them.
package schema
