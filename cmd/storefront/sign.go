package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"jewelstore/payments/razorpay"
)

// signCmd computes provider-compatible signatures for local webhook replays and checkout tests.
func signCmd() *cobra.Command {
	var (
		secret    string
		body      string
		file      string
		orderID   string
		paymentID string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute a webhook or payment confirmation signature",
		Long: `Sign prints the lowercase hex HMAC-SHA256 the payment provider would send.

With --order and --payment it signs "<order>|<payment>" (key secret).
Otherwise it signs the exact bytes of --body, --file, or stdin (webhook secret).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				// Trimmed like every STOREFRONT_* variable the service reads.
				secret = strings.TrimSpace(os.Getenv("STOREFRONT_SIGNING_SECRET"))
			}
			if strings.TrimSpace(secret) == "" {
				return errors.New("--secret or STOREFRONT_SIGNING_SECRET is required")
			}
			payload, err := signingPayload(cmd.InOrStdin(), body, file, orderID, paymentID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), razorpay.Sign(secret, payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (key secret for payments, webhook secret for bodies)")
	cmd.Flags().StringVar(&body, "body", "", "raw webhook body to sign")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file holding the raw webhook body")
	cmd.Flags().StringVar(&orderID, "order", "", "provider order id for a payment signature")
	cmd.Flags().StringVar(&paymentID, "payment", "", "provider payment id for a payment signature")
	cmd.MarkFlagsMutuallyExclusive("body", "file")
	cmd.MarkFlagsRequiredTogether("order", "payment")
	return cmd
}

func signingPayload(stdin io.Reader, body, file, orderID, paymentID string) ([]byte, error) {
	switch {
	case orderID != "" || paymentID != "":
		if body != "" || file != "" {
			return nil, errors.New("payment signatures do not take a body")
		}
		return razorpay.PaymentPayload(orderID, paymentID), nil
	case body != "":
		return []byte(body), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if len(data) == 0 {
			return nil, errors.New("nothing to sign: pass --body, --file, or pipe the body on stdin")
		}
		return data, nil
	}
}
