package loadgen

import (
	"bytes"
	"io"

	"github.com/docker/docker/pkg/stdcopy"
)

func demuxLogs(reader io.Reader) string {
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return buf.String()
	}
	return buf.String()
}
