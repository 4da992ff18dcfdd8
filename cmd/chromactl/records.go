package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hudson-blanoire/chroma-server/client"
)

func (c *cli) addCmd() *cobra.Command {
	var (
		collection, embeddings, metadatas string
		ids, documents                    []string
		upsert                            bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add records to a collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := client.AddRequest{IDs: ids}
			if err := parseJSONFlag("embeddings", embeddings, &req.Embeddings); err != nil {
				return err
			}
			if err := parseJSONFlag("metadatas", metadatas, &req.Metadatas); err != nil {
				return err
			}
			for i := range documents {
				req.Documents = append(req.Documents, &documents[i])
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			id, err := c.resolve(cmd.Context(), cl, collection)
			if err != nil {
				return err
			}
			if upsert {
				err = cl.Upsert(cmd.Context(), id, req)
			} else {
				err = cl.Add(cmd.Context(), id, req)
			}
			if err != nil {
				return err
			}
			return c.print(map[string]int{"written": len(ids)})
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection name (required)")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Record ids")
	cmd.Flags().StringVar(&embeddings, "embeddings", "", "Embeddings as a JSON array of arrays")
	cmd.Flags().StringArrayVar(&documents, "document", nil, "Document text, repeat once per id")
	cmd.Flags().StringVar(&metadatas, "metadatas", "", "Metadatas as a JSON array of objects")
	cmd.Flags().BoolVar(&upsert, "upsert", false, "Replace records that already exist")
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	var (
		collection, where, whereDocument string
		ids, include                     []string
		limit, offset                    int
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get records by id or filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := client.GetRequest{IDs: ids, Offset: offset, Include: include}
			if limit >= 0 {
				req.Limit = &limit
			}
			if err := parseJSONFlag("where", where, &req.Where); err != nil {
				return err
			}
			if err := parseJSONFlag("where-document", whereDocument, &req.WhereDocument); err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			id, err := c.resolve(cmd.Context(), cl, collection)
			if err != nil {
				return err
			}
			res, err := cl.Get(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return c.print(res)
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection name (required)")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Record ids")
	cmd.Flags().StringVar(&where, "where", "", "Metadata filter as JSON")
	cmd.Flags().StringVar(&whereDocument, "where-document", "", "Document filter as JSON")
	cmd.Flags().StringSliceVar(&include, "include", nil, "Columns to return")
	cmd.Flags().IntVar(&limit, "limit", -1, "Maximum number of records (-1 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of records to skip")
	return cmd
}

func (c *cli) queryCmd() *cobra.Command {
	var (
		collection, embeddings, where, whereDocument string
		texts, include                               []string
		n                                            int
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find the nearest records to query embeddings or texts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := client.QueryRequest{QueryTexts: texts, NResults: n, Include: include}
			if err := parseJSONFlag("embeddings", embeddings, &req.QueryEmbeddings); err != nil {
				return err
			}
			if req.QueryEmbeddings == nil && len(texts) == 0 {
				return fmt.Errorf("--embeddings or --text is required")
			}
			if err := parseJSONFlag("where", where, &req.Where); err != nil {
				return err
			}
			if err := parseJSONFlag("where-document", whereDocument, &req.WhereDocument); err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			id, err := c.resolve(cmd.Context(), cl, collection)
			if err != nil {
				return err
			}
			res, err := cl.Query(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return c.print(res)
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection name (required)")
	cmd.Flags().StringVar(&embeddings, "embeddings", "", "Query embeddings as a JSON array of arrays")
	cmd.Flags().StringArrayVar(&texts, "text", nil, "Query text, embedded by the server")
	cmd.Flags().IntVarP(&n, "n-results", "k", 10, "Results per query")
	cmd.Flags().StringVar(&where, "where", "", "Metadata filter as JSON")
	cmd.Flags().StringVar(&whereDocument, "where-document", "", "Document filter as JSON")
	cmd.Flags().StringSliceVar(&include, "include", nil, "Columns to return")
	return cmd
}

func (c *cli) countCmd() *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count records in a collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			id, err := c.resolve(cmd.Context(), cl, collection)
			if err != nil {
				return err
			}
			n, err := cl.Count(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.print(n)
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection name (required)")
	return cmd
}
