// Package cli contains utilities shared by the command tree: output
// formatting, secret entry and schema-driven operation commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"

	"github.com/andrei-cloud/emv_studio/internal/calculator"
)

// Output formats accepted by --output.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Encode writes v as JSON or YAML.
func Encode(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q, use json or yaml", format)
	}
}

// PrintResult writes res in the requested format. Text output lists the data
// fields in name order. A failed result is also returned as an error.
func PrintResult(w io.Writer, format string, res calculator.Result) error {
	if strings.EqualFold(format, FormatText) || format == "" {
		if err := printResultText(w, res); err != nil {
			return err
		}
	} else if err := Encode(w, format, res); err != nil {
		return err
	}

	if !res.Success {
		return fmt.Errorf("%s %s failed: %s", res.Calculator, res.Operation, res.Error)
	}

	return nil
}

func printResultText(w io.Writer, res calculator.Result) error {
	if !res.Success {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	names := maps.Keys(res.Data)
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(tw, "%s:\t%s\n", label(name), res.Data[name])
	}

	return tw.Flush()
}

// PrintResults writes batch results, one block per input.
func PrintResults(w io.Writer, format string, results []calculator.Result) error {
	if !strings.EqualFold(format, FormatText) && format != "" {
		return Encode(w, format, results)
	}

	failed := 0
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "[%d] %s %s\n", i, res.Calculator, res.Operation)
		if !res.Success {
			failed++
			fmt.Fprintf(w, "error %s: %s\n", res.Code, res.Error)
			continue
		}
		if err := printResultText(w, res); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(results))
	}

	return nil
}

// label turns a data field name into a text heading, kcv into KCV and
// issuer_auth_data into Issuer Auth Data.
func label(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		switch w {
		case "kcv", "pin", "iv", "arpc", "arqc", "atc", "psn", "udk", "ksn":
			words[i] = strings.ToUpper(w)
		default:
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
	}

	return strings.Join(words, " ")
}
