// Package parsers registers the built-in parser set.
package parsers

import (
	"github.com/exploopio/scanlens/pkg/core"
	"github.com/exploopio/scanlens/pkg/parsers/bandit"
	"github.com/exploopio/scanlens/pkg/parsers/checkov"
	"github.com/exploopio/scanlens/pkg/parsers/document"
	"github.com/exploopio/scanlens/pkg/parsers/prowler"
	"github.com/exploopio/scanlens/pkg/parsers/sarif"
	"github.com/exploopio/scanlens/pkg/registry"
)

// Builtins returns the built-in parsers in registration order. Tool-specific
// parsers come first so they win ties against the generic SARIF, document
// and text parsers.
func Builtins(logger core.Logger) []core.Parser {
	return []core.Parser{
		bandit.NewParser(logger),
		checkov.NewParser(),
		prowler.NewV2Parser(logger),
		prowler.NewV3Parser(logger),
		sarif.NewParser(),
		document.NewPDFParser(logger),
		document.NewDOCXParser(logger),
		document.NewSpreadsheetParser(logger),
		document.NewTextParser(logger),
	}
}

// RegisterBuiltins adds every built-in parser to reg. It stops at the first
// registration error.
func RegisterBuiltins(reg *registry.Registry, logger core.Logger) error {
	for _, p := range Builtins(logger) {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
