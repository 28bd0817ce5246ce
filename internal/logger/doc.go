// Package logger wraps zerolog with service-wide conventions: component
// tagging, structured field helpers, and console or JSON output selected
// by configuration.
package logger
