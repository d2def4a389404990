package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/apresai/newsletter-podcaster/internal/ingest"
	"github.com/apresai/newsletter-podcaster/internal/segment"
)

var splitCmd = &cobra.Command{
	Use:   "split <document>",
	Short: "Preview how a document is segmented into chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runSplit,
}

var flagSaveDir string

func init() {
	splitCmd.Flags().StringVar(&flagSaveDir, "save", "", "Write chunk_<i>.txt files to this directory")
	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	doc, err := ingest.NewLoader().Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	splitter := &segment.Splitter{
		FreeTalkMarker: cfg.Segment.FreeTalkMarker,
		LinksMarker:    cfg.Segment.LinksMarker,
	}
	chunks := splitter.Split(doc.Text)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s: %d chunk(s)", doc.Filename, len(chunks))))
	for _, c := range chunks {
		fmt.Fprintln(out, labelStyle.Render(string(c.Index))+
			valueStyle.Render(preview(c.Content, 60))+" "+
			dimStyle.Render(fmt.Sprintf("(%d chars)", utf8.RuneCountInString(c.Content))))
	}
	if flagSaveDir != "" {
		if err := segment.SaveChunks(flagSaveDir, chunks); err != nil {
			return err
		}
		fmt.Fprintln(out, dimStyle.Render("saved to "+flagSaveDir))
	}
	return nil
}

// preview returns the first non-blank line of s, cut to limit runes.
func preview(s string, limit int) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > limit {
			return string(r[:limit]) + "…"
		}
		return line
	}
	return "(empty)"
}
