package cli

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"SignalProof-Chain/internal/auth"
)

type tokenResult struct {
	SHA256 string `json:"sha256"`
}

func newTokenHashCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token-hash [token]",
		Short: "Print the digest to put in signald's auth.tokens",
		Long: `Hash an API token with SHA-256. signald stores only the digest. The token
is read from stdin when no argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				token = string(raw)
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("token is empty")
			}
			digest := auth.HashToken(token)
			return emit(cmd.OutOrStdout(), rootOpts.Format, tokenResult{SHA256: digest}, digest)
		},
	}
}
