package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoniostano/audiohook-bridge/internal/auth"
)

func newSignCmd() *cobra.Command {
	var (
		host       string
		secret     string
		keyID      string
		components []string
		headers    []string
	)
	cmd := &cobra.Command{
		Use:   "sign <request-target>",
		Short: "Print Signature headers for a signed upgrade request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or GENESYS_CLIENT_SECRET is required")
			}
			r, err := http.NewRequest(http.MethodGet, "http://"+host+args[0], nil)
			if err != nil {
				return err
			}
			r.Host = host
			for _, h := range headers {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("header %q is not name:value", h)
				}
				r.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
			}
			params := fmt.Sprintf("keyid=%q;alg=\"hmac-sha256\";created=%d", keyID, time.Now().Unix())
			if err := auth.Sign(r, secret, components, params); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", auth.SignatureInputHeader, r.Header.Get(auth.SignatureInputHeader))
			fmt.Fprintf(out, "%s: %s\n", auth.SignatureHeader, r.Header.Get(auth.SignatureHeader))
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost:8080", "value signed as @authority")
	cmd.Flags().StringVar(&secret, "secret", envOr("GENESYS_CLIENT_SECRET", ""), "base64 client secret")
	cmd.Flags().StringVar(&keyID, "key-id", envOr("GENESYS_API_KEY", ""), "keyid signature parameter")
	cmd.Flags().StringSliceVar(&components, "component", []string{"@request-target", "@authority"}, "signed components in order")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "extra request header name:value, signable as a component")
	return cmd
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
