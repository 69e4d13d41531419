// Package restyutil dumps raw HTTP exchanges to the filesystem for
// debugging scrapers against live sites.
package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type InstrumentOutput interface {
	Write(id string, contents string)
}

type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) FilesystemOutput {
	os.RemoveAll(dir)
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		panic(err)
	}
	return FilesystemOutput{directory: dir}
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

// InstrumentClient wires an exchange dump into a resty client. `output`
// is re-evaluated per response so the destination can be swapped in
// after client construction (or left nil to disable).
func InstrumentClient(client *resty.Client, output func() InstrumentOutput) {
	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		out := output()
		if out == nil {
			return nil
		}
		id := strconv.FormatUint(atomic.AddUint64(&idcounter, 1), 10)
		out.Write(id, formatHttpMessage(res))
		return nil
	})
}
