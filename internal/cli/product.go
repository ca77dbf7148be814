package cli

import (
	"github.com/spf13/cobra"

	"barborsa/internal/app"
)

var (
	productName  string
	productType  string
	productPrice int64
	productMin   int64
	productMax   int64
	productStock int64

	seedOverwrite bool
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage the venue catalog",
}

var productAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add a product priced at its normalized base price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AddProduct(cmd.Context(), app.ProductOptions{
			ID:        args[0],
			Name:      productName,
			Type:      productType,
			BasePrice: productPrice,
			Min:       productMin,
			Max:       productMax,
			Stock:     productStock,
		})
	},
}

var productSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the venue with the demo menu",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Seed(cmd.Context(), app.SeedOptions{Overwrite: seedOverwrite})
	},
}

func init() {
	productAddCmd.Flags().StringVar(&productName, "name", "", "Display name")
	productAddCmd.Flags().StringVar(&productType, "type", "", "Category shown on the board")
	productAddCmd.Flags().Int64Var(&productPrice, "price", 0, "Base price; becomes the start price after normalization")
	productAddCmd.Flags().Int64Var(&productMin, "min", 0, "Price floor")
	productAddCmd.Flags().Int64Var(&productMax, "max", 0, "Price ceiling")
	productAddCmd.Flags().Int64Var(&productStock, "stock", 0, "Initial stock")
	_ = productAddCmd.MarkFlagRequired("name")
	_ = productAddCmd.MarkFlagRequired("price")
	_ = productAddCmd.MarkFlagRequired("max")

	productSeedCmd.Flags().BoolVar(&seedOverwrite, "overwrite", false, "Overwrite products that already exist")

	productCmd.AddCommand(productAddCmd)
	productCmd.AddCommand(productSeedCmd)
}
