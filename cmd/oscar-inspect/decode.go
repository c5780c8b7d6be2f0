package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-oscar/pkg/inspect"
)

func decodeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [hex]",
		Short: "Decode an incoming ICBM frame",
		Long: `Decode a SNAC(0x0004,0x0007) frame and print the message as JSON.

The frame is read from the argument, or from stdin when none is given.
Whitespace inside the hex is ignored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			frame, err := inspect.ParseHex(input)
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}

			s, err := newStack(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			msg, err := s.dispatcher.Decode(cmd.Context(), frame)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inspect.NewMessageView(msg))
		},
	}
	return cmd
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
