package main

import (
	"io"
	"net"
	"os"

	mdposter "github.com/alnah/go-mdposter"
	"github.com/alnah/go-mdposter/engine"
)

// Environment holds injectable dependencies for testability.
type Environment struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Getenv  func(string) string
	Environ func() []string

	// NewFactory builds the browser session factory.
	NewFactory func(mdposter.BrowserConfig) engine.Factory

	// Listen opens the HTTP listener.
	Listen func(network, address string) (net.Listener, error)
}

// DefaultEnv returns the production environment: real Chrome, real sockets.
func DefaultEnv() *Environment {
	return &Environment{
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Getenv:  os.Getenv,
		Environ: os.Environ,
		NewFactory: func(cfg mdposter.BrowserConfig) engine.Factory {
			return mdposter.NewRodFactory(cfg)
		},
		Listen: net.Listen,
	}
}
