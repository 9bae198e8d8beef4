package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
)

type sourceFlags struct {
	docs      []string
	pages     []int
	sheet     string
	sheetName string
	headerRow int
	rows      []int
	urls      []string
}

func (f *sourceFlags) register(cmd *cobra.Command, withOthers bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.sheet, "sheet", "", "spreadsheet path (.xlsx, .xlsm or .csv)")
	fs.StringVar(&f.sheetName, "sheet-name", "", "worksheet name (default: first sheet)")
	fs.IntVar(&f.headerRow, "header-row", 0, "0-based index of the header row")
	fs.IntSliceVar(&f.rows, "rows", nil, "0-based data rows to use")
	if withOthers {
		fs.StringArrayVar(&f.docs, "doc", nil, "document path (.pdf or .txt); repeatable")
		fs.IntSliceVar(&f.pages, "pages", nil, "0-based pages to read from each --doc")
		fs.StringArrayVar(&f.urls, "url", nil, "product page URL; repeatable")
	}
}

// sources builds the job sources. Shape checks are left to the state machine
// so the CLI and the API reject the same inputs.
func (f *sourceFlags) sources() ([]entity.Source, error) {
	var out []entity.Source
	for _, d := range f.docs {
		out = append(out, entity.Source{Kind: constants.SourceDocument, Path: d, Pages: f.pages})
	}
	if f.sheet != "" {
		out = append(out, entity.Source{
			Kind:      constants.SourceSpreadsheet,
			Path:      f.sheet,
			Sheet:     f.sheetName,
			HeaderRow: f.headerRow,
			Rows:      f.rows,
		})
	}
	if len(f.urls) > 0 {
		out = append(out, entity.Source{Kind: constants.SourceWeb, URLs: f.urls})
	}
	if len(out) == 0 {
		return nil, common.ConfigError("at least one of --doc, --sheet or --url is required")
	}
	return out, nil
}

type paramFlags struct {
	fs           *pflag.FlagSet
	provider     string
	model        string
	temperature  float32
	instructions string
}

func (f *paramFlags) register(cmd *cobra.Command) {
	f.fs = cmd.Flags()
	f.fs.StringVar(&f.provider, "provider", "", "model provider: openai or groq")
	f.fs.StringVar(&f.model, "model", "", "extraction model")
	f.fs.Float32Var(&f.temperature, "temperature", 0, "sampling temperature")
	f.fs.StringVar(&f.instructions, "instructions", "", "custom instructions placed before the source text")
}

// params overlays the flags that were set on def.
func (f *paramFlags) params(def entity.ModelParams) entity.ModelParams {
	p := def
	if f.provider != "" {
		p.Provider = f.provider
	}
	if f.model != "" {
		p.Model = f.model
	}
	if f.fs != nil && f.fs.Changed("temperature") {
		p.Temperature = f.temperature
	}
	if f.instructions != "" {
		p.Instructions = f.instructions
	}
	return p
}

type jobFlags struct {
	category  string
	qualifier string
	userID    string
	username  string
	userName  string
	runID     string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.category, "category", "", "cosmetics, fragrance, subtype or supplements")
	cmd.Flags().StringVar(&f.qualifier, "qualifier", "", "base product a subtype job belongs to")
	_ = cmd.MarkFlagRequired("category")
	f.registerUser(cmd)
}

func (f *jobFlags) registerUser(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.userID, "user-id", "", "attribution: user id")
	cmd.Flags().StringVar(&f.username, "user", "", "attribution: username")
	cmd.Flags().StringVar(&f.userName, "user-name", "", "attribution: display name")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "tag attempts of this run (default: generated for batches)")
}

func (f *jobFlags) context(ctx context.Context) context.Context {
	if f.username != "" {
		ctx = common.WithUser(ctx, common.User{ID: f.userID, Username: f.username, Name: f.userName})
	}
	if f.runID != "" {
		ctx = common.WithRunID(ctx, f.runID)
	}
	return ctx
}
