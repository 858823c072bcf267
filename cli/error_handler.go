package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/Ludea/Sparus/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints the error with a hint for its kind and returns it.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	serr := errors.From(err)

	fmt.Fprintf(h.Out, "❌ Error: %v\n", err)
	if hint := hintFor(serr); hint != "" {
		fmt.Fprintln(h.Out, hint)
	}
	if h.Verbose {
		fmt.Fprintf(h.Out, "\nError details:\n%s\n", serr.ToJSON())
	}
	return err
}

func hintFor(err *errors.SparusError) string {
	switch err.Kind {
	case errors.KindCancelled:
		return "Run the same update again to resume where it stopped."
	case errors.KindUpdate:
		return "If the workspace is marked broken, reinstall it into an empty directory."
	case errors.KindRepository:
		if url, ok := err.Details["url"]; ok {
			return fmt.Sprintf("Check that the repository at %v is reachable and the credentials are right.", url)
		}
		return "Check the repository URL and credentials."
	case errors.KindHTTP:
		return "Check plugins_url in the configuration ('sparus config show')."
	case errors.KindStatus:
		return "The control plane rejected the request. Check launcher_url and launcher_name."
	case errors.KindWasm, errors.KindPluginMissing:
		return "List installed plugins with 'sparus plugin list'."
	case errors.KindJSON, errors.KindConfig:
		return "Fix the configuration file ('sparus config path') or validate it against 'sparus config schema'."
	case errors.KindSemver:
		return "Versions must be semantic versions such as 1.2.0."
	case errors.KindGameNotInstalled:
		return "Install the game with 'sparus update <workspace> <repository>'."
	}
	return ""
}
