// Package main inspects the certificate chain a TLS frontend presents,
// including the Subject Common Name the proxy_header authentication
// backend would check. Useful when wiring the reverse proxy: a
// mismatched CN here explains every 401 the server would otherwise
// return.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "tlscheck"
	app.Usage = "inspect the certificate chain a TLS frontend presents"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "addr, a",
			Usage: "host:port to dial",
		},
		cli.StringFlag{
			Name:  "expect-cn",
			Usage: "fail unless some peer certificate carries this common name",
		},
		cli.BoolFlag{
			Name:  "insecure, k",
			Usage: "skip chain verification (still prints the chain)",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: 10 * time.Second,
		},
	}
	app.Action = check

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func check(c *cli.Context) error {
	addr := c.String("addr")
	if addr == "" {
		return cli.NewExitError("--addr is required", 2)
	}

	dialer := &tls.Dialer{Config: &tls.Config{
		InsecureSkipVerify: c.Bool("insecure"),
	}}
	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	fmt.Printf("%s: %s\n", addr, tls.VersionName(state.Version))

	expectCN := c.String("expect-cn")
	found := false
	for i, cert := range state.PeerCertificates {
		fmt.Printf("  [%d] CN=%s issuer=%s notAfter=%s\n",
			i, cert.Subject.CommonName, cert.Issuer.CommonName, cert.NotAfter.Format(time.RFC3339))
		if expectCN != "" && cert.Subject.CommonName == expectCN {
			found = true
		}
	}
	if expectCN != "" && !found {
		return cli.NewExitError(fmt.Sprintf("no peer certificate with CN %q", expectCN), 1)
	}
	return nil
}
