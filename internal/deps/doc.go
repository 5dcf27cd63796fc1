// Package deps checks that the external converter binaries are installed.
package deps
