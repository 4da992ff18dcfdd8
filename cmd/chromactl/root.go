package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hudson-blanoire/chroma-server/client"
)

type cli struct {
	api string
	out io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:           "chromactl",
		Short:         "CLI client for the chroma-server REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&c.api, "api", "a", "http://localhost:8000", "chroma-server base URL")

	root.AddCommand(
		c.heartbeatCmd(),
		c.collectionsCmd(),
		c.addCmd(),
		c.getCmd(),
		c.queryCmd(),
		c.countCmd(),
	)
	return root
}

func (c *cli) client() (*client.Client, error) {
	return client.New(c.api)
}

func (c *cli) print(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(b))
	return err
}

// resolve maps a collection name to its id.
func (c *cli) resolve(ctx context.Context, cl *client.Client, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("--collection is required")
	}
	col, err := cl.GetCollection(ctx, name)
	if err != nil {
		return "", fmt.Errorf("collection %q: %w", name, err)
	}
	return col.ID, nil
}

// parseJSONFlag decodes an optional JSON flag value into v.
func parseJSONFlag(name, raw string, v interface{}) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("--%s: %w", name, err)
	}
	return nil
}

func (c *cli) heartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Check that the server is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			hb, err := cl.Heartbeat(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(map[string]int64{"nanosecond heartbeat": hb})
		},
	}
}
