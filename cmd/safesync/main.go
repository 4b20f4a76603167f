package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/ruteri/safesync/api"
	"github.com/ruteri/safesync/api/clients"
	"github.com/ruteri/safesync/cmd/flags"
	"github.com/ruteri/safesync/dbfile"
	"github.com/urfave/cli/v2"
)

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 60 * time.Second,
	Usage: "request timeout",
}

var flagRemote = &cli.BoolFlag{
	Name:  "remote",
	Usage: "compute pools on the server instead of locally",
}

var flagOut = &cli.StringFlag{
	Name:    "out",
	Aliases: []string{"o"},
	Usage:   "write the pulled database to this file instead of stdout",
}

func main() {
	app := &cli.App{
		Name:  "safesync",
		Usage: "Push, pull and inspect password databases through a safesync server",
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flagTimeout,
		},
		Commands: []*cli.Command{
			{
				Name:      "pools",
				Usage:     "show the minimal attachment and icon pools of a database file",
				ArgsUsage: "FILE",
				Flags:     []cli.Flag{flagRemote},
				Action: func(cCtx *cli.Context) error {
					return NewClient(cCtx).Pools(cCtx.Args().First(), cCtx.Bool(flagRemote.Name))
				},
			},
			{
				Name:      "push",
				Usage:     "upload a database file",
				ArgsUsage: "NAME FILE",
				Action: func(cCtx *cli.Context) error {
					return NewClient(cCtx).Push(cCtx.Args().Get(0), cCtx.Args().Get(1))
				},
			},
			{
				Name:      "pull",
				Usage:     "download a database",
				ArgsUsage: "NAME",
				Flags:     []cli.Flag{flagOut},
				Action: func(cCtx *cli.Context) error {
					return NewClient(cCtx).Pull(cCtx.Args().First(), cCtx.String(flagOut.Name))
				},
			},
			{
				Name:      "run",
				Usage:     "push a configured safe from the server's local file now",
				ArgsUsage: "NAME",
				Action: func(cCtx *cli.Context) error {
					return NewClient(cCtx).Run(cCtx.Args().First())
				},
			},
			{
				Name:  "status",
				Usage: "show the server's storage provider",
				Action: func(cCtx *cli.Context) error {
					return NewClient(cCtx).Status()
				},
			},
			{
				Name:  "signout",
				Usage: "sign the server's storage provider out",
				Action: func(cCtx *cli.Context) error {
					return NewClient(cCtx).SignOut()
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type Client struct {
	Provider api.SafesyncProvider
	Out      io.Writer
}

func NewClient(cCtx *cli.Context) *Client {
	return &Client{
		Provider: clients.NewSafesyncClient(cCtx.String(flags.ServerAddrFlag.Name), cCtx.Duration(flagTimeout.Name)),
		Out:      os.Stdout,
	}
}

func (c *Client) Pools(path string, remote bool) error {
	if path == "" {
		return fmt.Errorf("missing database file")
	}
	document, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if remote {
		resp, err := c.Provider.Pools(document)
		if err != nil {
			return fmt.Errorf("pools request failed: %w", err)
		}
		return c.print(resp)
	}

	db, err := dbfile.Decode(document)
	if err != nil {
		return err
	}
	resp := api.NewPoolsResponse(db)
	return c.print(resp)
}

func (c *Client) Push(name, path string) error {
	if name == "" || path == "" {
		return fmt.Errorf("usage: push NAME FILE")
	}
	document, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	resp, err := c.Provider.Push(name, document)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	return c.print(resp)
}

func (c *Client) Pull(name, out string) error {
	if name == "" {
		return fmt.Errorf("usage: pull NAME")
	}
	document, resp, err := c.Provider.Pull(name)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	if resp.FromCache {
		fmt.Fprintln(os.Stderr, "warning: storage provider offline, served from cache")
	}

	if out == "" {
		_, err = c.Out.Write(document)
		return err
	}
	if err := os.WriteFile(out, document, 0o600); err != nil {
		return err
	}
	return c.print(resp)
}

func (c *Client) Run(name string) error {
	if name == "" {
		return fmt.Errorf("usage: run NAME")
	}
	resp, err := c.Provider.RunSafe(name)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return c.print(resp)
}

func (c *Client) Status() error {
	resp, err := c.Provider.ProviderStatus()
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	return c.print(resp)
}

func (c *Client) SignOut() error {
	if err := c.Provider.SignOut(); err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}
	fmt.Fprintln(c.Out, "signed out")
	return nil
}

func (c *Client) print(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.Out, string(encoded))
	return err
}
