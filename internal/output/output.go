package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"country-store/internal/domain"
	"country-store/internal/service"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the accepted values of the --output flag.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// ValidateFormat returns an error for an unknown output format.
func ValidateFormat(format string) error {
	for _, f := range Formats {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q, must be one of %v", format, Formats)
}

// countryDoc is the structured form of a country, with native names expanded.
type countryDoc struct {
	Flag        string                        `json:"flag" yaml:"flag"`
	Common      string                        `json:"common" yaml:"common"`
	Official    string                        `json:"official" yaml:"official"`
	NativeNames map[string]domain.NameVariant `json:"nativeNames,omitempty" yaml:"nativeNames,omitempty"`
	Population  int64                         `json:"population" yaml:"population"`
	Region      string                        `json:"region" yaml:"region"`
}

func toDoc(c domain.Country, native bool) countryDoc {
	doc := countryDoc{
		Flag:       c.Flag,
		Common:     c.Name.Common,
		Official:   c.Name.Official,
		Population: c.Population,
		Region:     c.Region,
	}
	if native {
		if names := c.NativeNames(); len(names) > 0 {
			doc.NativeNames = names
		}
	}
	return doc
}

// Countries writes a listing in the given format.
func Countries(w io.Writer, format string, countries []domain.Country) error {
	switch format {
	case FormatJSON, FormatYAML:
		docs := make([]countryDoc, 0, len(countries))
		for _, c := range countries {
			docs = append(docs, toDoc(c, false))
		}
		return encode(w, format, docs)
	}

	rows := make([][]string, 0, len(countries))
	for _, c := range countries {
		rows = append(rows, []string{c.Flag, c.Name.Common, c.Region, humanize.Comma(c.Population)})
	}
	return writeTable(w, []string{"", "NAME", "REGION", "POPULATION"}, rows)
}

// Country writes a single country including its native names.
func Country(w io.Writer, format string, c domain.Country) error {
	switch format {
	case FormatJSON, FormatYAML:
		return encode(w, format, toDoc(c, true))
	}

	rows := [][]string{
		{"Flag", c.Flag},
		{"Common", c.Name.Common},
		{"Official", c.Name.Official},
		{"Region", c.Region},
		{"Population", humanize.Comma(c.Population)},
	}
	for _, lang := range c.NativeLanguages() {
		if v, ok := c.NativeName(lang); ok {
			rows = append(rows, []string{"Native (" + lang + ")", v.Common + " / " + v.Official})
		}
	}
	return writeTable(w, nil, rows)
}

// Regions writes region summaries.
func Regions(w io.Writer, format string, regions []service.RegionSummary) error {
	switch format {
	case FormatJSON, FormatYAML:
		return encode(w, format, regions)
	}

	rows := make([][]string, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, []string{r.Region, humanize.Comma(int64(r.Countries)), humanize.Comma(r.Population)})
	}
	return writeTable(w, []string{"REGION", "COUNTRIES", "POPULATION"}, rows)
}

func encode(w io.Writer, format string, v interface{}) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Border(lipgloss.HiddenBorder()).
		Rows(rows...)

	if len(headers) > 0 {
		t = t.Headers(headers...).BorderHeader(false)
	}

	_, err := fmt.Fprintln(w, t)
	return err
}
