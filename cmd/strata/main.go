package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/strataio/strata/pkg/compression"
	"github.com/strataio/strata/pkg/file"
	"github.com/strataio/strata/pkg/logger"
	"github.com/strataio/strata/pkg/schema"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	viper.SetEnvPrefix("STRATA")
	viper.AutomaticEnv()
	viper.SetDefault("log_level", "error")
	viper.SetDefault("compression", "snappy")
	viper.SetDefault("row_group_bytes", file.DefaultRowGroupByteSize)

	root := &cobra.Command{
		Use:   "strata",
		Short: "Strata - columnar file toolkit",
		Long: `Strata reads and writes columnar files: nested records are shredded
into per-column chunks grouped into row groups, with a Parquet-compatible
footer.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{Level: viper.GetString("log_level")})
		},
	}
	root.PersistentFlags().String("log-level", viper.GetString("log_level"), "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Strata v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "inspect <file>",
		Short: "Show the schema and row-group layout of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(args[0])
		},
	})

	var catColumns string
	catCmd := &cobra.Command{
		Use:   "cat <file>",
		Short: "Print records as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cat(args[0], catColumns)
		},
	}
	catCmd.Flags().StringVar(&catColumns, "columns", "", "Comma-separated column paths to project (default all)")
	root.AddCommand(catCmd)

	var schemaFile, outFile, codecName string
	importCmd := &cobra.Command{
		Use:   "import <data.jsonl>",
		Short: "Build a file from JSON lines",
		Long: `Build a columnar file from newline-delimited JSON records.
The schema is declared in a JSON file: a list of fields with name, type,
repetition and optional nested fields.

Example:
  strata import --schema schema.json --out events.parquet events.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importJSONL(args[0], schemaFile, outFile, codecName)
		},
	}
	importCmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "Path to schema JSON file (required)")
	importCmd.Flags().StringVarP(&outFile, "out", "o", "", "Output file path (required)")
	importCmd.Flags().StringVar(&codecName, "compression", viper.GetString("compression"),
		"Block compression (none, snappy, gzip, brotli, lz4, zstd)")
	_ = importCmd.MarkFlagRequired("schema")
	_ = importCmd.MarkFlagRequired("out")
	root.AddCommand(importCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func inspect(path string) error {
	r, err := file.OpenFile(path)
	if err != nil {
		return err
	}
	defer r.Close()

	meta := r.Metadata()
	fmt.Printf("file: %s\n", path)
	fmt.Printf("created by: %s\n", meta.CreatedBy)
	fmt.Printf("rows: %d\n", meta.NumRows)
	fmt.Printf("row groups: %d\n", len(meta.RowGroups))

	fmt.Println("\ncolumns:")
	for _, col := range r.Schema().Leaves() {
		fmt.Printf("  %-30s %-10s maxRep=%d maxDef=%d\n",
			col.DottedPath(), col.Type, col.MaxRepetitionLevel, col.MaxDefinitionLevel)
	}

	for i, rg := range meta.RowGroups {
		fmt.Printf("\nrow group %d: %d rows, %d uncompressed bytes\n", i, rg.NumRows, rg.TotalByteSize)
		for _, chunk := range rg.Columns {
			cm := chunk.MetaData
			nulls := int64(0)
			if cm.Statistics != nil {
				nulls = cm.Statistics.NullCount
			}
			fmt.Printf("  %-30s %s/%s %d values (%d null), %d -> %d bytes @ %d\n",
				strings.Join(cm.PathInSchema, "."), cm.Encodings[0], cm.Codec,
				cm.NumValues, nulls, cm.TotalUncompressedSize, cm.TotalCompressedSize, chunk.FileOffset)
		}
	}
	return nil
}

func cat(path, columns string) error {
	r, err := file.OpenFile(path)
	if err != nil {
		return err
	}
	defer r.Close()

	var paths []string
	if columns != "" {
		paths = strings.Split(columns, ",")
	}
	cursor, err := r.Cursor(paths...)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)
	for {
		rec, err := cursor.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
}

func importJSONL(dataPath, schemaPath, outPath, codecName string) error {
	s, err := loadSchemaFile(schemaPath)
	if err != nil {
		return err
	}
	codec, err := compression.ParseAlgorithm(codecName)
	if err != nil {
		return err
	}

	in, err := os.Open(dataPath)
	if err != nil {
		return fmt.Errorf("failed to open data file %s: %w", dataPath, err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", outPath, err)
	}

	cfg := file.DefaultWriterConfig()
	cfg.Compression = codec
	cfg.RowGroupByteSize = viper.GetInt64("row_group_bytes")
	cfg.Logger = logger.Get()
	w, err := file.NewWriter(out, s, cfg)
	if err != nil {
		out.Close()
		return err
	}

	log := logger.With(zap.String("component", "strata-cli"), zap.String("out", outPath))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec map[string]interface{}
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			out.Close()
			return fmt.Errorf("line %d: invalid JSON: %w", line, err)
		}
		if err := w.Append(rec); err != nil {
			out.Close()
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		out.Close()
		return fmt.Errorf("failed to read %s: %w", dataPath, err)
	}

	if err := w.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	log.Info("import complete",
		zap.Int64("records", w.RecordsWritten()),
		zap.Int64("bytes", w.BytesWritten()))
	fmt.Printf("wrote %d records (%d bytes) to %s\n", w.RecordsWritten(), w.BytesWritten(), outPath)
	return nil
}

// loadSchemaFile parses a schema declaration: a JSON array of fields.
func loadSchemaFile(path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	var fields []schema.Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	return schema.Build(fields)
}
