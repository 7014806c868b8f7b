package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format for CLI commands.
type OutputFormat string

const (
	OutputFormatYAML  OutputFormat = "yaml"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// DefaultOutput is the default output format.
var DefaultOutput OutputFormat = OutputFormatYAML

// globalOutputFormat is set by the root command's --output flag.
var globalOutputFormat OutputFormat = OutputFormatYAML

// Tabular is implemented by responses that can render as a table.
type Tabular interface {
	TableHeader() table.Row
	TableRows() []table.Row
}

// SetOutputFormat sets the global output format.
func SetOutputFormat(format string) {
	switch format {
	case "json":
		globalOutputFormat = OutputFormatJSON
	case "yaml":
		globalOutputFormat = OutputFormatYAML
	case "table":
		globalOutputFormat = OutputFormatTable
	default:
		globalOutputFormat = DefaultOutput
	}
}

// GetOutputFormat returns the current global output format.
func GetOutputFormat() OutputFormat {
	return globalOutputFormat
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, globalOutputFormat, data)
}

// OutputTo writes data to the given writer in the specified format.
// Table output falls back to YAML for data that is not Tabular.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case OutputFormatTable:
		t, ok := data.(Tabular)
		if !ok {
			return OutputTo(w, OutputFormatYAML, data)
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(t.TableHeader())
		tw.AppendRows(t.TableRows())
		tw.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// IsStructuredOutput returns true if the output format is structured (JSON/YAML).
// Commands print human-friendly progress only when it is false.
func IsStructuredOutput() bool {
	return globalOutputFormat == OutputFormatJSON || globalOutputFormat == OutputFormatYAML
}
