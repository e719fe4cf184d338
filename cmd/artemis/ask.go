package main

import (
	"fmt"
	"strings"

	"artemis-proxy/internal/client"
	"artemis-proxy/internal/models"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		baseURL  string
		token    string
		opts     models.Options
		pc       models.PageContext
		product  string
		category string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Send one question to a running proxy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if product != "" {
				pc.Product = &models.Product{Name: models.Scalar(product), Category: models.Scalar(category)}
			}
			messages := []models.Message{{Role: "user", Content: strings.Join(args, " ")}}

			resp, err := client.New(baseURL, token, nil).Ask(cmd.Context(), messages, &pc, &opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Reply)
			if resp.ImageDataURI != "" {
				fmt.Fprintf(out, "image: %d bytes data URI\n", len(resp.ImageDataURI))
			}
			fmt.Fprintf(out, "-- provider=%s model=%s note=%s elapsed=%dms trace=%s\n",
				resp.Provider, resp.ModelUsed, resp.Note, resp.ElapsedMs, resp.TraceID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&baseURL, "url", envOr("ARTEMIS_URL", "http://localhost:8080"), "proxy base URL")
	f.StringVar(&token, "token", envOr("ARTEMIS_TOKEN", ""), "bearer token")
	f.BoolVar(&opts.ForceLocal, "local", false, "answer with the local responder only")
	f.StringVar(&opts.ForceProvider, "provider", "", "try this provider first (openai or huggingface)")
	f.StringVar(&opts.HFModel, "hf-model", "", "Hugging Face chat model override")
	f.StringVar(&opts.HFFallback, "hf-fallback", "", "Hugging Face fallback model override")
	f.StringVar(&opts.Persona, "persona", "", "assistant personality")
	f.BoolVar(&opts.GenerateImage, "image", false, "generate an image instead of text")
	f.StringVar(&pc.Path, "page", "", "storefront page path for context")
	f.StringVar(&pc.Role, "role", "", "user role (buyer or seller)")
	f.StringVar(&product, "product", "", "product name for context")
	f.StringVar(&category, "category", "", "product category for context")
	return cmd
}
