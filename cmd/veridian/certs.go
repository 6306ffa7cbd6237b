// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	vtls "github.com/veridianid/veridian/internal/tls"
	"github.com/veridianid/veridian/internal/xdg"
)

// NewCertsCmd creates the certs subcommand.
func NewCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage development TLS certificates",
		Long: `Generate and inspect the self-signed certificate chain used to serve
the API over HTTPS during local development.`,
	}
	cmd.AddCommand(newCertsGenerateCmd())
	return cmd
}

func newCertsGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a development CA and API server certificate",
		RunE:  runCertsGenerate,
	}
	cmd.Flags().String("certs-dir", "", "certificate directory (default: XDG config certs dir)")
	cmd.Flags().StringSlice("hosts", nil, "extra DNS names for the server certificate")
	return cmd
}

func runCertsGenerate(cmd *cobra.Command, _ []string) error {
	certsDir, err := cmd.Flags().GetString("certs-dir")
	if err != nil {
		return err
	}
	if certsDir == "" {
		certsDir = xdg.CertsDir()
	}
	hosts, err := cmd.Flags().GetStringSlice("hosts")
	if err != nil {
		return err
	}

	if err := xdg.EnsureDir(certsDir); err != nil {
		return oops.Code("CERTS_GENERATE_FAILED").With("dir", certsDir).Wrap(err)
	}

	certFile, keyFile, err := vtls.EnsureServerCert(certsDir, vtls.APICertName, hosts)
	if err != nil {
		return oops.Code("CERTS_GENERATE_FAILED").With("dir", certsDir).Wrap(err)
	}

	cmd.Println("Certificate:", certFile)
	cmd.Println("Key:        ", keyFile)
	return nil
}
