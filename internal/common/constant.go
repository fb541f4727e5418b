// Package common contains shared constants and sentinel errors used across
// SafeShare components.
package common

// OriginHeaderName is the gRPC metadata key carrying the client origin. It is
// checked against the server's allowed origin the same way the WebSocket
// endpoint checks the HTTP Origin header.
const OriginHeaderName = "origin"
