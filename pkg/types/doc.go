// Package types defines the run configuration, the operation descriptor
// shapes read from the operations JSON document, and the standard errors
// shared by the invgen pipeline packages.
package types
