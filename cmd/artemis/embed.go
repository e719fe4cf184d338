package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"artemis-proxy/internal/client"

	"github.com/spf13/cobra"
)

func newEmbedCmd() *cobra.Command {
	var (
		baseURL string
		token   string
		image   string
		model   string
	)

	cmd := &cobra.Command{
		Use:   "embed [text]",
		Short: "Embed text, or an image with --image, through a running proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(baseURL, token, nil)

			var (
				vector json.RawMessage
				err    error
			)
			switch {
			case image != "":
				vector, err = c.EmbedImage(cmd.Context(), image, model)
			case len(args) > 0:
				vector, err = c.EmbedText(cmd.Context(), strings.Join(args, " "), model)
			default:
				return fmt.Errorf("give text to embed or --image")
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(vector))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&baseURL, "url", envOr("ARTEMIS_URL", "http://localhost:8080"), "proxy base URL")
	f.StringVar(&token, "token", envOr("ARTEMIS_TOKEN", ""), "bearer token")
	f.StringVar(&image, "image", "", "image URL or data: URI")
	f.StringVar(&model, "model", "", "feature-extraction model override")
	return cmd
}
