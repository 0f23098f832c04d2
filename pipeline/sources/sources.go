package sources

import (
	"fmt"
	"time"

	"github.com/routeflow/routeflow/pipeline/sources/push"
	"github.com/routeflow/routeflow/pipeline/sources/tail"
	"github.com/routeflow/routeflow/pipeline/types"
)

// Settings carries the type-specific options of a source node.  Only the
// options for the node's declared type are consulted.
type Settings struct {
	Name         string
	MaxBatchSize int
	MaxBatchWait time.Duration
	QueueSize    int

	// tail
	Targets []tail.Target

	// push
	ListenAddr string
	Path       string
}

type SourceCreator func(settings Settings) (types.Source, error)

const (
	SourceTypeTail = "tail"
	SourceTypePush = "push"
)

var sourceCreators = map[string]SourceCreator{
	SourceTypeTail: func(settings Settings) (types.Source, error) {
		return tail.NewTailSource(tail.TailSourceConfig{
			Name:          settings.Name,
			StaticTargets: settings.Targets,
			MaxBatchSize:  settings.MaxBatchSize,
			MaxBatchWait:  settings.MaxBatchWait,
			QueueSize:     settings.QueueSize,
		})
	},
	SourceTypePush: func(settings Settings) (types.Source, error) {
		return push.NewPushSource(push.PushSourceConfig{
			Name:         settings.Name,
			ListenAddr:   settings.ListenAddr,
			Path:         settings.Path,
			MaxBatchSize: settings.MaxBatchSize,
			MaxBatchWait: settings.MaxBatchWait,
			QueueSize:    settings.QueueSize,
		})
	},
}

func IsValidSourceType(sourceType string) bool {
	_, ok := sourceCreators[sourceType]
	return ok
}

func NewSource(sourceType string, settings Settings) (types.Source, error) {
	creator, ok := sourceCreators[sourceType]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %s", sourceType)
	}

	return creator(settings)
}
