package tail

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/ffjson/ffjson"

	"github.com/routeflow/routeflow/pipeline/types"
)

var (
	// At the end of the "log" field, this signifies that the log line is complete without further splits.
	dockerCompleteLogSuffix = "\n"

	// Length of the suffix
	dockerCompleteLogSuffixLength = len(dockerCompleteLogSuffix)
)

// DockerLog is the format from docker json logs
type DockerLog struct {
	Log    string `json:"log"`
	Stream string `json:"stream"`
	Time   string `json:"time"`
}

type DockerParser struct {
	streamPartials map[string]string
}

func NewDockerParser() *DockerParser {
	return &DockerParser{
		streamPartials: make(map[string]string),
	}
}

func (p *DockerParser) Parse(line string, r *types.Record) (isPartial bool, err error) {
	parsed := DockerLog{}
	err = ffjson.Unmarshal([]byte(line), &parsed)
	if err != nil {
		return false, fmt.Errorf("parseDockerLog: %w", err)
	}

	// Docker json logs are always terminated by a newline.
	// If they are not, the log is a partial one within that given stream. Docker splits logs at 16k.
	isPartial = !strings.HasSuffix(parsed.Log, dockerCompleteLogSuffix)
	currentLogMsg := parsed.Log

	previousLog, hasPreviousLog := p.streamPartials[parsed.Stream]
	if hasPreviousLog { //combine
		currentLogMsg = previousLog + currentLogMsg
	}

	if isPartial {
		p.streamPartials[parsed.Stream] = currentLogMsg
		return true, nil
	} else if hasPreviousLog {
		delete(p.streamPartials, parsed.Stream)
	}

	parsedTime, err := time.Parse(time.RFC3339Nano, parsed.Time)
	if err != nil {
		parsedTime = time.Now()
	}
	r.SetIngestTime(time.Now())
	r.Set("timestamp", parsedTime.Format(time.RFC3339Nano))
	r.Set("stream", parsed.Stream)
	// Strip trailing newline
	r.Set("message", currentLogMsg[:len(currentLogMsg)-dockerCompleteLogSuffixLength])

	return false, nil
}
