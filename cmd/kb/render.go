package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kodblock/internal/codegen"
	"github.com/alfredjeanlab/kodblock/internal/config"
	"github.com/alfredjeanlab/kodblock/internal/model"
)

var renderCmd = &cobra.Command{
	Use:   "render [file|-]",
	Short: "Render a block collection to an expression",
	Long: `Render reads a JSON block collection and prints its expression.

The input is either an array of blocks or an object with "blocks" and an
optional "mode", such as the output of "kb draft show --json". With no file
argument, or "-", the collection is read from stdin.`,
	GroupID:           "builder",
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		modeFlag, _ := cmd.Flags().GetString("mode")
		joiner, _ := cmd.Flags().GetString("joiner")

		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		data, err := readInput(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		blocks, mode, err := decodeCollection(data)
		if err != nil {
			return err
		}
		if modeFlag != "" {
			mode = model.Mode(modeFlag)
		}

		expr, err := renderLocal(blocks, mode, model.Connective(joiner))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"expression": expr})
		}
		fmt.Fprintln(cmd.OutOrStdout(), expr)
		return nil
	},
}

var platesCmd = &cobra.Command{
	Use:               "plates <text...>",
	Short:             "Validate registration plates",
	GroupID:           "builder",
	Args:              cobra.MinimumNArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		valid, invalid := model.ValidatePlates(strings.Join(args, " "))
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"valid":   nonNil(valid),
				"invalid": nonNil(invalid),
				"message": model.InvalidPlatesMessage(invalid),
			})
		}
		printPlates(cmd.OutOrStdout(), valid, invalid)
		if len(valid) == 0 {
			return fmt.Errorf("no valid plates")
		}
		return nil
	},
}

var typesCmd = &cobra.Command{
	Use:     "types",
	Short:   "List the available block types",
	GroupID: "builder",
	Args:    cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if local, _ := cmd.Flags().GetBool("local"); local {
			return nil
		}
		return rootCmd.PersistentPreRunE(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var types []model.BlockType
		if local, _ := cmd.Flags().GetBool("local"); local {
			blocksFile, _ := cmd.Flags().GetString("blocks")
			reg, err := (&config.Config{BlocksFile: blocksFile}).Registry()
			if err != nil {
				return err
			}
			types = reg.Types()
		} else {
			var err error
			types, err = builderClient.ListBlockTypes(context.Background())
			if err != nil {
				return fmt.Errorf("listing block types: %w", err)
			}
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), types)
		}
		printBlockTypes(cmd.OutOrStdout(), types)
		return nil
	},
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// decodeCollection accepts a bare block array or an object carrying
// "blocks" and "mode".
func decodeCollection(data []byte) (model.Collection, model.Mode, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var doc struct {
			Blocks model.Collection `json:"blocks"`
			Mode   model.Mode       `json:"mode"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return model.Collection{}, "", fmt.Errorf("decoding blocks: %w", err)
		}
		return doc.Blocks, doc.Mode, nil
	}
	var c model.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return model.Collection{}, "", fmt.Errorf("decoding blocks: %w", err)
	}
	return c, "", nil
}

func renderLocal(blocks model.Collection, mode model.Mode, joiner model.Connective) (string, error) {
	if mode == "" {
		mode = model.ModeJoined
	}
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid mode %q", mode)
	}
	if joiner != "" && !joiner.IsValid() {
		return "", fmt.Errorf("invalid joiner %q", joiner)
	}
	if err := blocks.Validate(); err != nil {
		return "", err
	}
	return codegen.Options{Mode: mode, Joiner: joiner}.Serialize(blocks), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func init() {
	renderCmd.Flags().String("mode", "", "serialization mode (joined or literal)")
	renderCmd.Flags().String("joiner", "", "connective between clauses in joined mode (and or or)")

	typesCmd.Flags().Bool("local", false, "list the local registry instead of asking the server")
	typesCmd.Flags().String("blocks", os.Getenv("KODBLOCK_BLOCKS_FILE"), "registry file (TOML, or YAML by extension) for --local")
}
