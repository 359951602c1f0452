// Package logging builds the structured logger from configuration
package logging
