package main

import "errors"

// CLI errors.
var (
	ErrUsage       = errors.New("invalid usage")
	ErrReadInput   = errors.New("failed to read input")
	ErrWriteOutput = errors.New("failed to write output")
	ErrListen      = errors.New("failed to listen")
)
