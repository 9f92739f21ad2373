package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
)

func newDeriveCmd(root *rootOptions) *cobra.Command {
	var owner, ownerAddr, title, collection string

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the addresses a catalog would deploy",
		Long: `Derive the catalog address from its owner, then the collection and track
addresses from their titles. Nothing is deployed.

Example:
  catalogd derive --title "Blue in Green" --collection "Kind of Blue"
  catalogd derive --owner-address 0:9f3c... --title Solo`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var ownerAddress ledger.Address
			switch {
			case ownerAddr != "":
				a, err := ledger.ParseAddress(ownerAddr)
				if err != nil {
					return err
				}
				ownerAddress = a
			default:
				if owner == "" {
					cfg, err := root.load()
					if err != nil {
						return err
					}
					owner = cfg.Ledger.OwnerWallet
				}
				ownerAddress = core.WalletInit(owner).Address()
			}

			out := cmd.OutOrStdout()
			cat := catalog.CatalogInit(ownerAddress).Address()
			fmt.Fprintf(out, "owner       %s\n", ownerAddress)
			fmt.Fprintf(out, "catalog     %s\n", cat)
			if title == "" && collection == "" {
				return nil
			}

			var col *ledger.Address
			if cmd.Flags().Changed("collection") {
				a := catalog.CollectionAddress(collection, cat)
				col = &a
				fmt.Fprintf(out, "collection  %s\n", a)
			}
			if title != "" {
				fmt.Fprintf(out, "track       %s\n", catalog.TrackAddress(title, col, cat))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner wallet name (default from config)")
	cmd.Flags().StringVar(&ownerAddr, "owner-address", "", "owner address, instead of a wallet name")
	cmd.Flags().StringVar(&title, "title", "", "track title")
	cmd.Flags().StringVar(&collection, "collection", "", "collection title")
	cmd.MarkFlagsMutuallyExclusive("owner", "owner-address")
	return cmd
}
