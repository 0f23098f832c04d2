package sinks

import (
	"fmt"
	"time"

	"github.com/routeflow/routeflow/pipeline/types"
)

// Settings carries the type-specific options of a sink node.  Only the
// options for the node's declared type are consulted.
type Settings struct {
	Name string

	// http
	URI                string
	Codec              string
	Compression        string
	Headers            map[string]string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

type SinkCreator func(settings Settings) (types.Sink, error)

const (
	SinkTypeConsole = "console"
	SinkTypeHTTP    = "http"
)

var sinkCreators = map[string]SinkCreator{
	SinkTypeConsole: func(settings Settings) (types.Sink, error) {
		return NewConsoleSink(settings.Name), nil
	},
	SinkTypeHTTP: func(settings Settings) (types.Sink, error) {
		return NewHttpSink(HttpSinkConfig{
			Name:               settings.Name,
			URI:                settings.URI,
			Codec:              settings.Codec,
			Compression:        settings.Compression,
			Headers:            settings.Headers,
			InsecureSkipVerify: settings.InsecureSkipVerify,
			Timeout:            settings.Timeout,
		})
	},
}

func IsValidSinkType(sinkType string) bool {
	_, ok := sinkCreators[sinkType]
	return ok
}

func NewSink(sinkType string, settings Settings) (types.Sink, error) {
	creator, ok := sinkCreators[sinkType]
	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s", sinkType)
	}

	return creator(settings)
}
