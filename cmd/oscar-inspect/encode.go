package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-oscar/pkg/inspect"
)

func encodeCmd(configPath *string) *cobra.Command {
	var serverAck bool

	cmd := &cobra.Command{
		Use:   "encode [json]",
		Short: "Build an outgoing ICBM frame",
		Long: `Build a SNAC(0x0004,0x0006) frame from a JSON message description and
print it as hex. The description is read from the argument, or from stdin.

Example:

  oscar-inspect encode '{"channel":"plain-text","recipient":"123456","text":{"text":"hi"}}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			var req inspect.EncodeRequest
			dec := json.NewDecoder(strings.NewReader(input))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				return fmt.Errorf("invalid message: %w", err)
			}
			if req.Recipient == "" {
				return fmt.Errorf("invalid message: recipient is required")
			}

			msg, err := req.Message()
			if err != nil {
				return err
			}

			s, err := newStack(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			enc := s.encoder
			if serverAck {
				enc = s.encoderWithAck()
			}
			frame, err := enc.Encode(msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(frame))
			return nil
		},
	}

	cmd.Flags().BoolVar(&serverAck, "ack", false, "Ask the server to acknowledge delivery")
	return cmd
}
