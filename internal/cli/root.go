package cli

import (
	"github.com/spf13/cobra"
)

// Version is the string reported by "gateway --version". It stays
// "dev" unless overridden at link time (-ldflags "-X"); cmd/gateway's
// main does not set it.
var Version = "dev"

// NewRootCmd builds the gateway's root cobra command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "gateway",
		Short:   "cc-gateway is a multi-protocol LLM API gateway",
		Long:    "cc-gateway fronts multiple upstream LLM providers behind the Anthropic Messages, OpenAI Chat Completions, and OpenAI Responses wire formats, translating between them while streaming.",
		Version: Version,
	}
	root.AddCommand(NewServeCmd())
	root.AddCommand(NewConfigCmd())
	return root
}
