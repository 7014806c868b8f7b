package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint pairs an HTTP route with the CLI command that calls it, so the
// server and `lexshelf api` cannot drift apart.
type Endpoint interface {
	// Route returns the method, the ServeMux path pattern and the handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the handler needs the store and
	// pipelines; such routes answer 503 until the server has initialized.
	RequiresInit() bool

	// Command builds the cobra command for this endpoint. getServerURL is
	// read when the command runs, after flags are parsed.
	Command(getServerURL func() string) *cobra.Command
}
