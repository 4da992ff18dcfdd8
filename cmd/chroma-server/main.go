// Command chroma-server starts the vector database server on 0.0.0.0:8000.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/hudson-blanoire/chroma-server/chromaserver"
)

const (
	host = "0.0.0.0"
	port = 8000
)

type runner interface {
	Run() error
}

// newServer is replaced in tests.
var newServer = func(host string, port int) runner {
	return chromaserver.New(host, port)
}

func main() {
	if err := launch(os.Stdout); err != nil {
		log.Error().Err(err).Msg("chroma-server exited with error")
		os.Exit(1)
	}
}

func launch(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Starting ChromaDB server on http://%s:%d\n", host, port); err != nil {
		return err
	}
	return newServer(host, port).Run()
}
