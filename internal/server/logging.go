package server

import "go.uber.org/zap"

// NewLogger builds the process logger: a console-friendly development
// encoder when development is set, the JSON production encoder otherwise.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
