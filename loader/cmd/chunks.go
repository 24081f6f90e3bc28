package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ragbridge/chunker"
	"ragbridge/loader/extract"
)

func NewChunksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks FILE",
		Short: "Print the chunks a file would be split into",
		Long:  `Extract and chunk FILE with the configured chunking settings without calling any provider.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			c := a.cfg.Chunking
			ch, err := chunker.New(chunker.Mode(c.Mode), c.Size, c.Overlap, c.Encoding)
			if err != nil {
				return err
			}
			docs, err := extract.FromFile(args[0], a.margins())
			if err != nil {
				return err
			}
			chunks, err := ch.ChunkDocuments(docs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(chunks)
			}
			for _, chunk := range chunks {
				fmt.Fprintf(out, "--- chunk %d ---\n%s\n", chunk.Index, chunk.Text)
			}
			fmt.Fprintf(out, "%d chunks (%s, size %d, overlap %d)\n", len(chunks), c.Mode, c.Size, c.Overlap)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the chunks as JSON")
	return cmd
}
