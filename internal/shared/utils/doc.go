// Package utils holds input validation shared by the transport layers.
package utils
