package main

import (
	"github.com/spf13/cobra"

	"github.com/hudson-blanoire/chroma-server/client"
	"github.com/hudson-blanoire/chroma-server/internal/model"
)

func (c *cli) collectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"col"},
		Short:   "Manage collections",
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			cols, err := cl.ListCollections(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return c.print(cols)
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "Maximum number of collections (0 = all)")
	list.Flags().IntVar(&offset, "offset", 0, "Number of collections to skip")

	var metadata, space string
	var getOrCreate bool
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var md model.Metadata
			if err := parseJSONFlag("metadata", metadata, &md); err != nil {
				return err
			}
			if space != "" {
				if md == nil {
					md = model.Metadata{}
				}
				md[model.SpaceKey] = space
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			col, err := cl.CreateCollection(cmd.Context(), client.CreateCollectionRequest{Name: args[0], Metadata: md, GetOrCreate: getOrCreate})
			if err != nil {
				return err
			}
			return c.print(col)
		},
	}
	create.Flags().StringVar(&metadata, "metadata", "", "Collection metadata as a JSON object")
	create.Flags().StringVar(&space, "space", "", "Distance function: l2, cosine or ip")
	create.Flags().BoolVar(&getOrCreate, "get-or-create", false, "Return the existing collection instead of failing")

	get := &cobra.Command{
		Use:   "get NAME",
		Short: "Show a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			col, err := cl.GetCollection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(col)
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a collection and its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			if err := cl.DeleteCollection(cmd.Context(), args[0]); err != nil {
				return err
			}
			return c.print(map[string]string{"deleted": args[0]})
		},
	}

	cmd.AddCommand(list, create, get, del)
	return cmd
}
